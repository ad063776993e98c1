package search

import (
	"context"
	"errors"
	"fmt"

	"librarium/contentservice/internal/domain"
	"librarium/contentservice/internal/timeout"
	"librarium/contentservice/internal/transform"
	"librarium/contentservice/internal/upstream"
)

// ErrNotFound reports that the upstream has no record for an id, or that the
// record it returned was rejected at the transform boundary.
var ErrNotFound = errors.New("content not found")

// Getter is the detail surface of the upstream client.
type Getter interface {
	Get(ctx context.Context, contentType domain.ContentType, id string) (upstream.Item, error)
}

// Detail resolves single items by id through the per-type detail endpoints.
type Detail struct {
	upstream    Getter
	transformer *transform.Transformer
	timeouts    *timeout.Manager
}

func NewDetail(getter Getter, transformer *transform.Transformer, timeouts *timeout.Manager) *Detail {
	return &Detail{
		upstream:    getter,
		transformer: transformer,
		timeouts:    timeouts,
	}
}

func (d *Detail) Get(ctx context.Context, contentType domain.ContentType, id string) (domain.ContentItem, error) {
	if !transform.ValidID(id) {
		return domain.ContentItem{}, fmt.Errorf("%w: invalid id %q", ErrNotFound, id)
	}

	var raw upstream.Item
	operationID := fmt.Sprintf("detail:%s:%s", contentType, id)
	err := d.timeouts.Run(ctx, operationID, timeout.PageDeadline, func(runCtx context.Context) error {
		var getErr error
		raw, getErr = d.upstream.Get(runCtx, contentType, id)
		return getErr
	})
	if err != nil {
		return domain.ContentItem{}, err
	}

	item, ok := d.transformer.Transform(raw, contentType)
	if !ok {
		return domain.ContentItem{}, fmt.Errorf("%w: %s/%s", ErrNotFound, contentType, id)
	}
	return item, nil
}
