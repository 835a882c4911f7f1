package answer

import "github.com/kailas-cloud/ragdesk/internal/domain"

// Emit receives stream frames in order. A non-nil error stops the stream.
type Emit func(frame domain.Frame) error
