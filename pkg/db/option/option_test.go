package option

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply_FallsBackToDefaultSort(t *testing.T) {
	q := Apply("created_at", []string{"created_at", "code"}, WithQuerySortBy("; DROP TABLE vouchers"))
	assert.Equal(t, "created_at", q.SortBy)
	assert.True(t, q.SortDesc)
	assert.Equal(t, " ORDER BY created_at DESC, id DESC", q.OrderClause())
}

func TestApply_AllowedSort(t *testing.T) {
	q := Apply("created_at", []string{"created_at", "code"}, WithQuerySortBy("code"), WithLimit(20))
	assert.Equal(t, " ORDER BY code ASC, id ASC LIMIT 20", q.OrderClause())

	q = Apply("created_at", []string{"created_at", "code"}, WithQuerySortBy("-code"))
	assert.Equal(t, " ORDER BY code DESC, id DESC", q.OrderClause())
}
