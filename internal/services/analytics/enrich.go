package analytics

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/chatsell/agency_dash/backend/internal/store"
)

type companyConversations struct {
	Conversations int64 `bson:"conversations"`
}

// enrichConversations attaches each company's conversation volume with one
// sub-aggregation per row. A company without users keeps zero.
func (s *Service) enrichConversations(ctx context.Context, tenant string, rows []CompanyProfit) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := range rows {
		g.Go(func() error {
			var out []companyConversations
			pipeline := CompanyConversationsPipeline(tenant, rows[i].ID).Compile()
			if err := s.store.Aggregate(gctx, store.CollectionUsers, pipeline, &out); err != nil {
				return fmt.Errorf("enrich %q: %w", rows[i].ID, err)
			}
			rows[i].Conversations = 0
			if len(out) > 0 {
				rows[i].Conversations = out[0].Conversations
			}
			return nil
		})
	}
	return g.Wait()
}
