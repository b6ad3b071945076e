package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newContext(rawQuery string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/?"+rawQuery, nil)
	return c
}

func TestParsePageParams(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := ParsePageParams(newContext(""))
		assert.Equal(t, 1, p.Page)
		assert.Equal(t, DefaultPageSize, p.PageSize)
		assert.Equal(t, 0, p.GetOffset())
	})

	t.Run("invalid values fall back", func(t *testing.T) {
		p := ParsePageParams(newContext("page=-2&page_size=abc"))
		assert.Equal(t, DefaultPage, p.Page)
		assert.Equal(t, DefaultPageSize, p.PageSize)
	})

	t.Run("page size is capped", func(t *testing.T) {
		p := ParsePageParams(newContext("page=3&page_size=1000"))
		assert.Equal(t, MaxPageSize, p.GetLimit())
		assert.Equal(t, 2*MaxPageSize, p.GetOffset())
	})
}

func TestNewPageInfo(t *testing.T) {
	info := NewPageInfo(2, 10, 25)
	assert.Equal(t, 3, info.TotalPages)
	assert.True(t, info.HasNext)
	assert.True(t, info.HasPrev)

	last := NewPageInfo(3, 10, 25)
	assert.False(t, last.HasNext)

	empty := NewPageInfo(1, 10, 0)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNext)
	assert.False(t, empty.HasPrev)
}

func TestPaginate(t *testing.T) {
	type row struct {
		ID uint
	}
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&row{}))
	for i := 0; i < 25; i++ {
		require.NoError(t, db.Create(&row{}).Error)
	}

	var rows []row
	require.NoError(t, db.Order("id").Scopes(Paginate(3, 10)).Find(&rows).Error)
	require.Len(t, rows, 5)
	assert.Equal(t, uint(21), rows[0].ID)

	// 非法参数回落到默认值
	rows = nil
	require.NoError(t, db.Order("id").Scopes(Paginate(0, 0)).Find(&rows).Error)
	assert.Len(t, rows, DefaultPageSize)
}
