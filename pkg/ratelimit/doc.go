// Package ratelimit throttles outgoing requests per remote host.
//
// Media are usually served from a CDN host distinct from the page or API
// host, so each host gets its own token bucket (golang.org/x/time/rate)
// and a slow CDN never starves API paging or the other way round.
//
//	limiter := ratelimit.NewHostLimiter(4, 4)
//	if err := limiter.Wait(ctx, "i.pinimg.com"); err != nil {
//	    return err // ctx cancelled
//	}
package ratelimit
