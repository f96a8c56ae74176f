// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"log"
	"os"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/tliron/commonlog"

	"pcodecore/internal/hostrpc"
	"pcodecore/internal/session"
)

func main() {
	commonlog.Configure(1, nil)

	core := session.NewService()
	handler := hostrpc.NewHandler(core)

	log.Println("Starting pcode-bridge command surface over stdio...")

	stream := jsonrpc2.NewBufferedStream(stdioReadWriteCloser{}, jsonrpc2.VSCodeObjectCodec{})
	conn := jsonrpc2.NewConn(context.Background(), stream, handler)
	<-conn.DisconnectNotify()
}

// stdioReadWriteCloser adapts stdin/stdout to io.ReadWriteCloser, the
// shape jsonrpc2.NewBufferedStream expects, mirroring the teacher's
// RunStdio entry point (github.com/tliron/glsp/server) but built
// directly on jsonrpc2 since this daemon has no LSP transport to
// delegate to.
type stdioReadWriteCloser struct{}

func (stdioReadWriteCloser) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioReadWriteCloser) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func (stdioReadWriteCloser) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}
