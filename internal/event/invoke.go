package event

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"dispatch-proxy-go/internal/model"
)

// MsgInvalidEvent is reported when an event body cannot be decoded.
const MsgInvalidEvent = "Invalid event body."

// Dispatcher handles one normalized request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *model.Request) *model.Response
}

// Invoke reads one JSON event from r, dispatches it, and writes the JSON
// reply to w. A malformed envelope is an error. A body that fails to decode
// is answered with a 400 reply.
func (a Adapter) Invoke(ctx context.Context, d Dispatcher, r io.Reader, w io.Writer) error {
	var ev Request
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return fmt.Errorf("read event: %w", err)
	}

	var resp *model.Response
	req, err := a.Normalize(ev)
	if err != nil {
		resp = model.ErrorResponse(http.StatusBadRequest, MsgInvalidEvent, err.Error())
	} else {
		resp = d.Dispatch(ctx, req)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a.Reply(resp)); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}
