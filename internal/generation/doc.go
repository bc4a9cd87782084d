// Package generation polls storefronts that prepare files server-side
// before they can be downloaded.
//
// The loop, attempt counting and delay policy live here; decoding a status
// payload and deciding whether it means ready or failed is supplied by each
// storefront through an Adapter. Polling is strictly sequential.
//
//	adapter := generation.Adapter[int]{
//	    Trigger: func(ctx context.Context) error { ... },
//	    Poll:    func(ctx context.Context) ([]byte, error) { ... },
//	    Decode:  parseStatus,
//	    Ready:   func(code int) bool { return code == 3 },
//	}
//	job, err := generation.Run(ctx, poller, "epub", format.Ready, adapter)
package generation
