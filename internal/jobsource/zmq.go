package jobsource

import (
	"context"
	"fmt"

	zmq "github.com/pebbe/zmq4"

	"github.com/bardlex/gomc/pkg/log"
)

// BlockListener subscribes to hashblock notifications and invokes a
// refresh callback whenever a new block appears, signalling that the
// current job is stale.
type BlockListener struct {
	socket   *zmq.Socket
	endpoint string
	logger   *log.Logger
}

// NewBlockListener creates a listener for the given ZMQ endpoint.
func NewBlockListener(endpoint string, logger *log.Logger) (*BlockListener, error) {
	socket, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ socket: %w", err)
	}

	return &BlockListener{
		socket:   socket,
		endpoint: endpoint,
		logger:   logger.WithComponent("block_listener"),
	}, nil
}

// Listen connects, subscribes to hashblock, and loops until the context
// is cancelled. onNewBlock receives the display-order block hash.
func (l *BlockListener) Listen(ctx context.Context, onNewBlock func(blockHash string)) error {
	if err := l.socket.SetSubscribe("hashblock"); err != nil {
		return fmt.Errorf("failed to subscribe to hashblock: %w", err)
	}
	if err := l.socket.Connect(l.endpoint); err != nil {
		return fmt.Errorf("failed to connect to ZMQ endpoint %s: %w", l.endpoint, err)
	}

	l.logger.Info("listening for block notifications", "endpoint", l.endpoint)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("block listener stopping")
			return ctx.Err()
		default:
		}

		msg, err := l.socket.RecvMessageBytes(zmq.DONTWAIT)
		if err != nil {
			if err.Error() == "resource temporarily unavailable" {
				continue
			}
			l.logger.WithError(err).Error("failed to receive ZMQ message")
			continue
		}

		if len(msg) < 2 || string(msg[0]) != "hashblock" {
			continue
		}

		data := msg[1]
		if len(data) != 32 {
			l.logger.Warn("malformed block hash notification", "size", len(data))
			continue
		}

		blockHash := reverseHex(data)
		l.logger.Info("new block notification", "hash", blockHash)
		onNewBlock(blockHash)
	}
}

// Close closes the ZMQ socket.
func (l *BlockListener) Close() error {
	if l.socket != nil {
		return l.socket.Close()
	}
	return nil
}

// reverseHex reverses bytes and formats as hex, converting a wire-order
// hash to display order.
func reverseHex(data []byte) string {
	reversed := make([]byte, len(data))
	for i := range data {
		reversed[i] = data[len(data)-1-i]
	}
	return fmt.Sprintf("%x", reversed)
}
