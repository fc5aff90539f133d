package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/star/starpredict/internal/metrics"
)

// writeWindow is how long a single SSE write may take.
const writeWindow = 30 * time.Second

// client writes to one SSE connection.
type client struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
	logger  *slog.Logger
}

// extendDeadline pushes the write deadline out before each write.
func (c *client) extendDeadline() {
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeWindow)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
}

// sendJSON writes v as one "data:" event.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "json marshal")
	}

	c.extendDeadline()
	n, err := fmt.Fprintf(c.w, "data: %s\n\n", data)
	if err != nil {
		return errors.Wrap(err, "write")
	}
	c.flusher.Flush()
	metrics.RecordStreamMessage(n)
	return nil
}

// sendKeepalive writes an SSE comment.
func (c *client) sendKeepalive() error {
	c.extendDeadline()
	if _, err := fmt.Fprint(c.w, ":\n\n"); err != nil {
		return errors.Wrap(err, "keepalive write")
	}
	c.flusher.Flush()
	return nil
}
