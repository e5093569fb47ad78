package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/shaharia-lab/brewmcp/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// StdIOServer serves one connection over a pair of streams, normally the
// process's standard input and output.
type StdIOServer struct {
	*Server
	in  io.Reader
	out *LineWriter
}

// NewStdIOServer creates a new StdIOServer.
func NewStdIOServer(server *Server, in io.Reader, out io.Writer) *StdIOServer {
	return &StdIOServer{
		Server: server,
		in:     in,
		out:    NewLineWriter(out),
	}
}

// Run reads and handles messages until the input ends or ctx is cancelled.
// End of input is a clean shutdown and returns nil.
func (s *StdIOServer) Run(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "StdIOServer.Run")
	defer span.End()

	var err error
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	session := s.NewSession()
	span.SetAttributes(attribute.String("session", session.ID()))
	logger := session.logger

	reader := NewLineReader(s.in)
	done := make(chan error, 1)

	go func() {
		for {
			select {
			case <-ctx.Done():
				done <- ctx.Err()
				return
			default:
			}

			msg, readErr := reader.ReadMessage()
			if readErr != nil {
				var frameErr *FrameError
				if errors.As(readErr, &frameErr) {
					logger.WithErr(frameErr.Err).WithFields(map[string]interface{}{
						"line": truncate(frameErr.Line, 256),
					}).Error("Failed to decode message")
					continue
				}
				if errors.Is(readErr, io.EOF) {
					done <- nil
				} else {
					done <- readErr
				}
				return
			}

			if msg.Kind() == KindRequest && s.limiter != nil {
				if waitErr := s.limiter.Wait(ctx); waitErr != nil {
					done <- waitErr
					return
				}
			}

			reply := session.Handle(ctx, msg)
			if reply == nil {
				continue
			}

			if writeErr := s.out.WriteMessage(reply); writeErr != nil {
				logger.WithErr(writeErr).Error("Failed to write response")
				done <- fmt.Errorf("write response: %w", writeErr)
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Debug("Context cancelled, StdIOServer shutting down....")
		err = ctx.Err()
		return err
	case err = <-done:
		logger.WithErr(err).Debug("StdIOServer shutting down.")
		return err
	}
}
