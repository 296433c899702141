package network

import "github.com/pixil98/go-arena/internal/messaging"

type RouterOpt func(*Router)

// WithPublisher sets where session lifecycle events go
func WithPublisher(p messaging.Publisher) RouterOpt {
	return func(r *Router) {
		r.publisher = p
	}
}
