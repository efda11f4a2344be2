package repository

import (
	"context"
	"novaexam_backend/internal/model"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// StudentEmails 所有填写了邮箱的学生
func (r *UserRepository) StudentEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := r.DB.WithContext(ctx).Model(&model.User{}).
		Where("role = ? AND email <> ''", model.Student).
		Order("id asc").
		Pluck("email", &emails).Error
	return emails, err
}

func (r *UserRepository) CountStudents(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.User{}).Where("role = ?", model.Student).Count(&count).Error
	return count, err
}
