package cloud_test

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
)

// pagerOf serves pages in order, or fails the first fetch when err is set.
func pagerOf[T any](err error, pages ...T) *runtime.Pager[T] {
	i := 0
	return runtime.NewPager(runtime.PagingHandler[T]{
		More: func(T) bool {
			return i < len(pages)
		},
		Fetcher: func(context.Context, *T) (T, error) {
			var zero T
			if err != nil {
				return zero, err
			}
			if i >= len(pages) {
				return zero, nil
			}
			p := pages[i]
			i++
			return p, nil
		},
	})
}
