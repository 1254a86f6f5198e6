package streamclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/waypoint/pkg/domain"
)

const maxFrameSize = 1024 * 1024

// ParseFrames reads `data: {json}` frames from r and calls fn for each event.
// Lines other than data lines are ignored. An error returned by fn stops the
// scan and is returned as is.
func ParseFrames(r io.Reader, fn func(domain.StreamEvent) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var ev domain.StreamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("failed to decode stream frame: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// WriteFrame writes ev as one frame.
func WriteFrame(w io.Writer, ev domain.StreamEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}
