package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostgresOptionDSN(t *testing.T) {
	testCases := []struct {
		desc string
		opt  PostgresOption
		want string
	}{
		{
			desc: "defaults",
			opt:  PostgresOption{},
			want: "postgres://localhost:5432?sslmode=disable",
		},
		{
			desc: "credentials and database",
			opt:  PostgresOption{Host: "db", Port: 6543, User: "trader", Password: "p@ss", Database: "cache"},
			want: "postgres://trader:p%40ss@db:6543/cache?sslmode=disable",
		},
		{
			desc: "user only with params",
			opt:  PostgresOption{User: "trader", SSLMode: "require", Params: map[string]string{"application_name": "node", "": "x"}},
			want: "postgres://trader@localhost:5432?application_name=node&sslmode=require",
		},
		{
			desc: "ipv6 host",
			opt:  PostgresOption{Host: "::1", Database: "cache"},
			want: "postgres://[::1]:5432/cache?sslmode=disable",
		},
		{
			desc: "conn string wins",
			opt:  PostgresOption{Host: "ignored", ConnString: "postgres://a@b/c"},
			want: "postgres://a@b/c",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.opt.DSN())
		})
	}
}
