package databases

import (
	"math"

	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/linesmerrill/case-portal-api/workflow"
)

type mongoPaginate struct {
	limit int64
	page  int64
}

func newMongoPaginate(limit, page int) *mongoPaginate {
	q := workflow.CaseQuery{Limit: limit, Page: page}.Normalized()
	return &mongoPaginate{
		limit: int64(q.Limit),
		page:  int64(q.Page),
	}
}

func (mp *mongoPaginate) getPaginatedOpts() *options.FindOptions {
	l := mp.limit
	skip := int64(math.MaxInt64)
	if mp.page-1 <= math.MaxInt64/mp.limit {
		skip = (mp.page - 1) * mp.limit
	}
	fOpt := options.FindOptions{Limit: &l, Skip: &skip}

	return &fOpt
}
