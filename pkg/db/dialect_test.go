package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestSupportsRowLocking(t *testing.T) {
	cases := []struct {
		name      string
		dialector gorm.Dialector
		want      bool
	}{
		{"postgres", postgres.New(postgres.Config{}), true},
		{"mysql", mysql.New(mysql.Config{}), true},
		{"sqlite", sqlite.Open(":memory:"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := &gorm.DB{Config: &gorm.Config{Dialector: tc.dialector}}
			assert.Equal(t, tc.want, SupportsRowLocking(conn))
		})
	}
}
