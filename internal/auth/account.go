package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"

	"neuroassess/internal/config"
	"neuroassess/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	// ErrInvalidCredentials 用户名或密码错误
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrAccountNotFound 账号不存在
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountDisabled 账号已禁用
	ErrAccountDisabled = errors.New("account disabled")
)

// Account 认证后的账号信息
type Account struct {
	Username    string
	Authorities []string
}

// AccountStore 账号存储
type AccountStore interface {
	// Authenticate 校验用户名密码
	Authenticate(ctx context.Context, username, password string) (*Account, error)
	// Lookup 按用户名查询（会话 token 解析主体时使用）
	Lookup(ctx context.Context, username string) (*Account, error)
}

// NewAccountStore 根据 security.account_store 创建账号存储
func NewAccountStore(cfg *config.Config, db *gorm.DB) (AccountStore, error) {
	switch cfg.Security.AccountStore {
	case config.StoreDatabase:
		if db == nil {
			return nil, errors.New("account store: database not initialized")
		}
		return NewDBAccountStore(db), nil
	default:
		return NewMemoryAccountStore(cfg.Security.Users), nil
	}
}

// MemoryAccountStore 配置文件中的账号
type MemoryAccountStore struct {
	mu    sync.RWMutex
	users map[string]config.UserConfig
}

// NewMemoryAccountStore 创建内存账号存储
func NewMemoryAccountStore(users []config.UserConfig) *MemoryAccountStore {
	s := &MemoryAccountStore{users: make(map[string]config.UserConfig, len(users))}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

// Authenticate 校验用户名密码
func (s *MemoryAccountStore) Authenticate(_ context.Context, username, password string) (*Account, error) {
	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()
	if !ok || !checkPassword(u.Password, password) {
		return nil, ErrInvalidCredentials
	}
	return &Account{Username: u.Username, Authorities: append([]string(nil), u.Authorities...)}, nil
}

// Lookup 按用户名查询
func (s *MemoryAccountStore) Lookup(_ context.Context, username string) (*Account, error) {
	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &Account{Username: u.Username, Authorities: append([]string(nil), u.Authorities...)}, nil
}

// DBAccountStore 数据库账号，密码为 bcrypt 哈希
type DBAccountStore struct {
	db *gorm.DB
}

// NewDBAccountStore 创建数据库账号存储
func NewDBAccountStore(db *gorm.DB) *DBAccountStore {
	return &DBAccountStore{db: db}
}

// Authenticate 校验用户名密码
func (s *DBAccountStore) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	acc, err := s.find(ctx, username)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	if !acc.Enabled() {
		return nil, ErrAccountDisabled
	}
	return &Account{Username: acc.Username, Authorities: acc.AuthorityList()}, nil
}

// Lookup 按用户名查询
func (s *DBAccountStore) Lookup(ctx context.Context, username string) (*Account, error) {
	acc, err := s.find(ctx, username)
	if err != nil {
		return nil, err
	}
	if !acc.Enabled() {
		return nil, ErrAccountDisabled
	}
	return &Account{Username: acc.Username, Authorities: acc.AuthorityList()}, nil
}

// Upsert 创建或更新账号，密码以 bcrypt 保存（已是 bcrypt 哈希时原样保存）
func (s *DBAccountStore) Upsert(ctx context.Context, username, password string, authorities []string) error {
	hash := password
	if !strings.HasPrefix(password, "$2") {
		var err error
		if hash, err = HashPassword(password); err != nil {
			return err
		}
	}
	var acc model.Account
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&acc).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		acc = model.Account{
			Username:    username,
			Password:    hash,
			Authorities: strings.Join(authorities, ","),
			Status:      1,
		}
		return s.db.WithContext(ctx).Create(&acc).Error
	case err != nil:
		return err
	default:
		return s.db.WithContext(ctx).Model(&acc).Updates(map[string]any{
			"password":    hash,
			"authorities": strings.Join(authorities, ","),
		}).Error
	}
}

func (s *DBAccountStore) find(ctx context.Context, username string) (*model.Account, error) {
	var acc model.Account
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// HashPassword 生成 bcrypt 哈希
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// checkPassword 配置中的密码以 $2 开头时按 bcrypt 校验，否则明文比较
func checkPassword(stored, given string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(given)) == nil
	}
	return stored != "" && subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
