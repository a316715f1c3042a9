package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"shop/internal/domain/model"
	"shop/internal/repository"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// 会員登録の入力
type RegisterUserInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

// 会員登録の出力
type RegisterUserOutput struct {
	User model.User
}

var (
	// 入力が不正
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrWeakPassword       = errors.New("weak password")

	// 競合
	ErrEmailAlreadyExists = errors.New("email already exists")
)

// 平文パスワードからハッシュへ。
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

// RegisterUserUsecaseは会員登録の処理。
type RegisterUserUsecase struct {
	userRepo repository.UserRepository
	outbox   repository.OutboxRepository
	hasher   PasswordHasher
	clock    Clock
	logger   zerolog.Logger
}

// DI
func NewRegisterUserUsecase(
	userRepo repository.UserRepository,
	outbox repository.OutboxRepository,
	hasher PasswordHasher,
	clock Clock,
	logger zerolog.Logger,
) *RegisterUserUsecase {
	return &RegisterUserUsecase{
		userRepo: userRepo,
		outbox:   outbox,
		hasher:   hasher,
		clock:    clock,
		logger:   logger,
	}
}

// 会員登録実行
func (u *RegisterUserUsecase) Execute(ctx context.Context, in RegisterUserInput) (RegisterUserOutput, error) {
	var out RegisterUserOutput

	// emailの形式チェック
	if !isValidEmailFormat(in.Email) {
		return out, ErrInvalidEmailFormat
	}

	// password の長さチェック（最小8文字）
	if len(in.Password) < 8 {
		return out, ErrPasswordTooShort
	}

	// よくある弱いパスワードの拒否
	if isWeakPassword(in.Password) {
		return out, ErrWeakPassword
	}

	// email重複チェック
	existing, err := u.userRepo.FindByEmail(ctx, in.Email)
	if err == nil && existing != nil {
		return out, ErrEmailAlreadyExists
	}
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return out, err
	}

	// パスワードをハッシュ化
	hashed, err := u.hasher.Hash(in.Password)
	if err != nil {
		return out, err
	}

	// 確認コードを採番（メール送信はpoller任せ）
	code, err := newVerificationCode()
	if err != nil {
		return out, err
	}

	now := u.clock.Now()
	user := &model.User{
		Email:            strings.TrimSpace(in.Email),
		Name:             strings.TrimSpace(in.Name),
		Phone:            strings.TrimSpace(in.Phone),
		PasswordHash:     hashed, // ハッシュを保存（平文は保存しない）
		Role:             model.RoleUser,
		TokenVersion:     0,
		IsActive:         true,
		VerificationCode: code,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// DBへ保存
	if err := u.userRepo.Create(ctx, user); err != nil {
		return out, err
	}

	// 登録通知をoutboxへ。失敗しても登録自体は成立させる。
	payload, _ := json.Marshal(map[string]interface{}{
		"user_id":           user.ID,
		"email":             user.Email,
		"verification_code": code,
	})
	if err := u.outbox.Enqueue(ctx, model.OutboxEvent{
		EventType:   model.EventUserRegistered,
		AggregateID: fmt.Sprintf("user-%d", user.ID),
		Payload:     string(payload),
	}); err != nil {
		u.logger.Error().Err(err).Int64("user_id", user.ID).Msg("failed to enqueue registration event")
	}

	// 返すときは秘匿フィールドを空にして漏洩防止
	safeUser := *user
	safeUser.PasswordHash = ""
	safeUser.VerificationCode = ""

	out.User = safeUser
	return out, nil
}

// メールチェック
func isValidEmailFormat(email string) bool {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return false
	}
	_, err := mail.ParseAddress(trimmed)
	return err == nil
}

// よくある弱いパスワード
func isWeakPassword(password string) bool {
	normalized := strings.ToLower(strings.TrimSpace(password))

	weak := map[string]struct{}{
		"password":    {},
		"password123": {},
		"123456789":   {},
		"1234567890":  {},
		"12345678":    {},
		"qwerty":      {},
		"qwertyuiop":  {},
		"letmein":     {},
		"admin":       {},
		"admin123":    {},
	}

	_, ok := weak[normalized]
	return ok
}

// 6桁の確認コード
func newVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// bcryptハッシュ化
type BcryptPasswordHasher struct {
	cost int
}

// DI
func NewBcryptPasswordHasher(cost int) *BcryptPasswordHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptPasswordHasher{cost}
}

// bcryptでハッシュ化
func (h *BcryptPasswordHasher) Hash(plain string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}

	return string(hashedBytes), nil
}

// bcryptハッシュと平文を比較
type BcryptPasswordVerifier struct{}

// DI
func NewBcryptPasswordVerifier() *BcryptPasswordVerifier {
	return &BcryptPasswordVerifier{}
}

// 平文(plain)をbcryptで比較
func (v *BcryptPasswordVerifier) Verify(plain string, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}
