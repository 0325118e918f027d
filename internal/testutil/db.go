package testutil

import (
	"strings"
	"suma_backend/internal/model"
	"suma_backend/pkg/database"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB 每个测试独立的内存 sqlite，已完成迁移
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 单连接，避免内存库在连接之间出现表锁
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	user := &model.User{Name: strings.Split(email, "@")[0], Email: email, Password: "x", Role: model.Learner}
	require.NoError(t, db.Create(user).Error)
	return user
}

// Section 小节 + 所在课程与关卡，status 为 in_progress
type Section struct {
	Course  *model.Course
	Level   *model.Level
	Section *model.Section
	Blocks  []*model.Block
}

// SeedSection 建一门就绪的课程，一个关卡、一个小节，以及给定的块（按顺序编号）
func SeedSection(t *testing.T, db *gorm.DB, userID uint, bodies ...model.BlockBody) *Section {
	t.Helper()

	course := &model.Course{UserID: userID, Title: "Go", Status: model.CourseReady}
	require.NoError(t, db.Create(course).Error)
	level := &model.Level{CourseID: course.ID, UserID: userID, Title: "Basics", Order: 1}
	require.NoError(t, db.Create(level).Error)
	section := &model.Section{LevelID: level.ID, UserID: userID, Title: "Variables", Order: 1, Status: model.SectionInProgress}
	require.NoError(t, db.Create(section).Error)

	blocks := make([]*model.Block, 0, len(bodies))
	for i, body := range bodies {
		b, err := model.NewBlock(section.ID, userID, i+1, body, nil)
		require.NoError(t, err)
		require.NoError(t, db.Create(b).Error)
		blocks = append(blocks, b)
	}
	return &Section{Course: course, Level: level, Section: section, Blocks: blocks}
}
