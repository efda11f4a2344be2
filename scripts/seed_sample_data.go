// 写入示例数据：管理员、学生、分类和两场考试
//
// 重复执行是安全的，已存在的用户名、分类和同名考试会被跳过。
//
// 用法: go run scripts/seed_sample_data.go [-file scripts/sample_data.yaml]

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"novaexam_backend/internal/config"
	"novaexam_backend/internal/model"
	"novaexam_backend/internal/repository"
	"novaexam_backend/internal/service"
	"novaexam_backend/internal/util"
	"novaexam_backend/pkg/database"
	"novaexam_backend/pkg/logger"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type seedUser struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

type seedCategory struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type seedQuestion struct {
	Text        string   `yaml:"text"`
	Marks       int      `yaml:"marks"`
	Explanation string   `yaml:"explanation"`
	Choices     []string `yaml:"choices"`
	Correct     int      `yaml:"correct"` // 从 1 开始
}

type seedExam struct {
	Title            string         `yaml:"title"`
	Description      string         `yaml:"description"`
	Category         string         `yaml:"category"`
	DurationMinutes  int            `yaml:"duration_minutes"`
	StartOffsetHours int            `yaml:"start_offset_hours"`
	EndOffsetHours   int            `yaml:"end_offset_hours"`
	Published        bool           `yaml:"published"`
	Questions        []seedQuestion `yaml:"questions"`
}

type seedData struct {
	Users      []seedUser     `yaml:"users"`
	Categories []seedCategory `yaml:"categories"`
	Exams      []seedExam     `yaml:"exams"`
}

func main() {
	file := flag.String("file", "scripts/sample_data.yaml", "示例数据文件")
	flag.Parse()

	raw, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("无法读取示例数据: %v", err)
	}
	var data seedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		log.Fatalf("解析示例数据失败: %v", err)
	}

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("无法读取配置文件: %v", err)
	}
	logger.InitLogger(cfg)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode)
	if err != nil {
		log.Fatalf("数据库连接失败: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	users := repository.NewUserRepository(db)
	exams := repository.NewExamRepository(db)
	attempts := repository.NewAttemptRepository(db)
	categories := repository.NewCategoryRepository(db)

	authService := service.NewAuthService(users, cfg)
	// 示例数据不发送通知，也不上传图片
	examService := service.NewExamService(exams, attempts, categories, nil, nil, nil)

	ctx := context.Background()

	for _, u := range data.Users {
		role := model.Student
		if u.Role == string(model.Admin) {
			role = model.Admin
		}
		_, err := authService.CreateUser(ctx, u.Username, u.Email, u.Password, role)
		switch {
		case errors.Is(err, util.ErrUsernameTaken):
			log.Printf("用户已存在，跳过: %s", u.Username)
		case err != nil:
			log.Fatalf("创建用户 %s 失败: %v", u.Username, err)
		default:
			log.Printf("创建用户: %s/%s (%s)", u.Username, u.Password, role)
		}
	}

	categoryIDs := make(map[string]uint)
	for _, c := range data.Categories {
		created, err := examService.CreateCategory(ctx, service.CategoryReq{Name: c.Name, Description: c.Description})
		if err != nil && !errors.Is(err, util.ErrConflict) {
			log.Fatalf("创建分类 %s 失败: %v", c.Name, err)
		}
		if created != nil {
			log.Printf("创建分类: %s", c.Name)
		}
	}
	existingCategories, err := examService.ListCategories(ctx)
	if err != nil {
		log.Fatalf("读取分类失败: %v", err)
	}
	for _, c := range existingCategories {
		categoryIDs[c.Name] = c.ID
	}

	existing, err := examService.ListExams(ctx)
	if err != nil {
		log.Fatalf("读取考试失败: %v", err)
	}
	titles := make(map[string]bool, len(existing))
	for _, e := range existing {
		titles[e.Title] = true
	}

	now := time.Now()
	for _, e := range data.Exams {
		if titles[e.Title] {
			log.Printf("考试已存在，跳过: %s", e.Title)
			continue
		}

		req := service.ExamReq{
			Title:           e.Title,
			Description:     e.Description,
			DurationMinutes: e.DurationMinutes,
			StartTime:       now.Add(time.Duration(e.StartOffsetHours) * time.Hour),
			EndTime:         now.Add(time.Duration(e.EndOffsetHours) * time.Hour),
			IsPublished:     e.Published,
		}
		if id, ok := categoryIDs[e.Category]; ok {
			req.CategoryID = &id
		}
		exam, err := examService.CreateExam(ctx, req)
		if err != nil {
			log.Fatalf("创建考试 %s 失败: %v", e.Title, err)
		}

		for i, q := range e.Questions {
			qReq := service.QuestionReq{
				Text:        q.Text,
				Marks:       q.Marks,
				Explanation: q.Explanation,
			}
			for k, text := range q.Choices {
				qReq.Choices = append(qReq.Choices, service.ChoiceReq{Text: text, IsCorrect: k+1 == q.Correct})
			}
			if _, err := examService.CreateQuestion(ctx, exam.ID, qReq); err != nil {
				log.Fatalf("考试 %s 第 %d 题创建失败: %v", e.Title, i+1, err)
			}
		}
		log.Printf("创建考试: %s，共 %d 题", e.Title, len(e.Questions))
	}

	log.Println("示例数据写入完成")
}
