package sqlxrepos

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/intellibus/aimasterclass/core"
)

func Test_userOrderClause(t *testing.T) {
	tests := []struct {
		name     string
		ordering []core.DBOrdering
		want     string
	}{
		{
			name: "empty falls back to newest first",
			want: " ORDER BY created_at DESC",
		},
		{
			name: "known columns pass through",
			ordering: []core.DBOrdering{
				{Field: "name", Ascending: true},
				{Field: "created_at"},
			},
			want: " ORDER BY name ASC, created_at DESC",
		},
		{
			name: "unknown columns are dropped",
			ordering: []core.DBOrdering{
				{Field: "email; DROP TABLE \"user\"", Ascending: true},
				{Field: "email", Ascending: true},
			},
			want: " ORDER BY email ASC",
		},
		{
			name: "only unknown columns falls back",
			ordering: []core.DBOrdering{
				{Field: "(SELECT 1)"},
			},
			want: " ORDER BY created_at DESC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, userOrderClause(tt.ordering))
		})
	}
}
