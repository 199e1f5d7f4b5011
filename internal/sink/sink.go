package sink

import (
	"context"

	"github.com/relabs-tech/ghg_sampler/internal/sample"
)

// Sink receives every fused measurement record. Implementations must
// tolerate being called at the sampling rate.
type Sink interface {
	Write(ctx context.Context, rec sample.Record) error
	Close()
}
