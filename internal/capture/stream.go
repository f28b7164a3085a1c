package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/labelocr/internal/ocr"
	"github.com/MeKo-Tech/labelocr/internal/ocrerr"
	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
)

// QuitMessage is the text message that ends a stream.
const QuitMessage = "quit"

const writeTimeout = 10 * time.Second

// WebSocketSource receives frames from a remote producer. Every binary
// message is an encoded JPEG or PNG frame and counts as a capture trigger.
type WebSocketSource struct {
	conn   *websocket.Conn
	url    string
	logger *slog.Logger
	now    func() time.Time

	writeMu sync.Mutex
	index   int64
}

// DialWebSocket connects to url.
func DialWebSocket(ctx context.Context, url string, logger *slog.Logger) (*WebSocketSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, ocrerr.New(ocrerr.FrameAcquisitionFailed, "dial stream", err).WithDetail("url", url)
	}
	logger.Info("Connected to frame stream", "url", url)
	return &WebSocketSource{conn: conn, url: url, logger: logger, now: time.Now}, nil
}

// Next waits for the next frame. A "quit" text message or a normal close
// ends the stream; any other read failure is FrameAcquisitionFailed.
// Binary messages that do not decode are logged and skipped.
func (s *WebSocketSource) Next(ctx context.Context) (ocr.Frame, error) {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ocr.Frame{}, ctxErr
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ocr.Frame{}, ErrEndOfStream
			}
			return ocr.Frame{}, ocrerr.New(ocrerr.FrameAcquisitionFailed, "read stream", err).WithDetail("url", s.url)
		}

		switch msgType {
		case websocket.TextMessage:
			if strings.EqualFold(strings.TrimSpace(string(data)), QuitMessage) {
				return ocr.Frame{}, ErrEndOfStream
			}
			s.logger.Debug("Ignoring text message", "size", len(data))
		case websocket.BinaryMessage:
			img, err := imaging.Decode(bytes.NewReader(data))
			if err != nil {
				s.logger.Warn("Skipping undecodable frame", "error", err, "size", len(data))
				continue
			}
			s.index++
			return ocr.Frame{
				Image:      img,
				CapturedAt: s.now(),
				Source:     "stream:" + s.url,
				Index:      s.index,
			}, nil
		}
	}
}

// Reply sends v back to the producer as a JSON text message.
func (s *WebSocketSource) Reply(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the connection.
func (s *WebSocketSource) Close() error {
	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()

	err := s.conn.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		s.logger.Debug("Close handshake failed", "error", werr)
	}
	return err
}
