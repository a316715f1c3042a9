package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"shop/internal/config"
	"shop/internal/domain/model"
	"shop/internal/handler"
	"shop/internal/infra/db"
	infraRepo "shop/internal/infra/repository"
	"shop/internal/notification"
	"shop/internal/usecase"
	auth "shop/internal/usecase/auth_usecase"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now()
}

// 注文参照番号: LS-<epoch-ms>-<random>
type referenceGenerator struct{}

func (g *referenceGenerator) NewOrderReference() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	suffix := int64(0)
	if err == nil {
		suffix = n.Int64()
	}
	return fmt.Sprintf("LS-%d-%06d", time.Now().UnixMilli(), suffix)
}

// 追跡番号: LSH-<epoch-ms>-<uuid先頭8桁大文字>
type trackingGenerator struct{}

func (g *trackingGenerator) NewTrackingNumber() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("LSH-%d-%s", time.Now().UnixMilli(), id)
}

type jwtIssuer struct {
	secret    []byte
	accessTTL time.Duration
}

func (i *jwtIssuer) Issue(userID int64, role model.Role, tokenVersion int, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(i.accessTTL)

	claims := jwt.MapClaims{
		"sub":  fmt.Sprintf("%d", userID),
		"role": string(role),
		"tv":   tokenVersion,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

func main() {
	//.envは無くてもいい（本番は環境変数で渡す）
	_ = godotenv.Load()

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.GoEnv == "dev" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}

	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.Address{},
		&model.Category{},
		&model.Product{},
		&model.Cart{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.Payment{},
		&model.PaymentAnomaly{},
		&model.Shipment{},
		&model.OutboxEvent{},
		&model.AuditLog{},
		&model.InventoryAdjustment{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate schema")
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	categoryRepo := infraRepo.NewCategoryGormRepository(gormDB)
	addressRepo := infraRepo.NewAddressGormRepository(gormDB)
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	paymentRepo := infraRepo.NewPaymentGormRepository(gormDB)
	inventoryRepo := infraRepo.NewInventoryGormRepository(gormDB)
	outboxRepo := infraRepo.NewOutboxGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//usecaseに渡す部品
	clock := &realClock{}
	refGen := &referenceGenerator{}
	trackGen := &trackingGenerator{}

	//bcrypt（会員登録：Hash / ログイン：Verify）
	hasher := auth.NewBcryptPasswordHasher(12)
	verifier := auth.NewBcryptPasswordVerifier()

	//JWT issuer
	issuer := &jwtIssuer{
		secret:    []byte(cfg.JWTSecret),
		accessTTL: 15 * time.Minute,
	}

	//Usecase生成
	registerUC := auth.NewRegisterUserUsecase(userRepo, outboxRepo, hasher, clock, logger)
	loginUC := auth.NewLoginUsecase(userRepo, verifier, issuer, clock)
	productUC := usecase.NewProductUsecase(productRepo, categoryRepo, inventoryRepo, auditRepo, clock, logger)
	categoryUC := usecase.NewCategoryUsecase(categoryRepo)
	cartUC := usecase.NewCartUsecase(txManager)
	addressUC := usecase.NewAddressUsecase(addressRepo)
	orderUC := usecase.NewOrderUsecase(txManager, addressRepo, refGen, clock,
		cfg.TaxRatePercent, cfg.ShippingCost, cfg.Currency)
	adminOrderUC := usecase.NewAdminOrderUsecase(txManager, orderRepo, auditRepo, clock, logger)
	webhookUC := usecase.NewPaymentWebhookUsecase(txManager, logger,
		cfg.PayUAPIKey, cfg.PayUMerchantID, cfg.PayUCancelUnapproved)
	adminPaymentUC := usecase.NewAdminPaymentUsecase(paymentRepo)
	shippingUC := usecase.NewShippingUsecase(txManager, trackGen, clock, logger,
		cfg.ShippingCarrier, cfg.ShippingDeliveryDays)

	//Handler生成
	authH := handler.NewAuthHandler(registerUC, loginUC)
	productH := handler.NewProductHandler(productUC)
	adminProductH := handler.NewAdminProductHandler(productUC)
	categoryH := handler.NewCategoryHandler(categoryUC)
	cartH := handler.NewCartHandler(cartUC)
	addressH := handler.NewAddressHandler(addressUC)
	orderH := handler.NewOrderHandler(orderUC)
	adminOrderH := handler.NewAdminOrderHandler(adminOrderUC, shippingUC)
	paymentH := handler.NewPaymentHandler(webhookUC, adminPaymentUC)
	shippingH := handler.NewShippingHandler(shippingUC)

	//Echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	//認証なしの公開系はレート制限をかける
	public := e.Group("", echomw.RateLimiter(
		echomw.NewRateLimiterMemoryStore(rate.Limit(20)),
	))

	authH.RegisterRoutes(e)
	productH.RegisterRoutes(e)
	adminProductH.RegisterRoutes(e, cfg, userRepo)
	categoryH.RegisterRoutes(e, cfg, userRepo)
	cartH.RegisterRoutes(e, cfg, userRepo)
	addressH.RegisterRoutes(e, cfg, userRepo)
	orderH.RegisterRoutes(e, cfg, userRepo)
	adminOrderH.RegisterRoutes(e, cfg, userRepo)
	paymentH.RegisterRoutes(e, public, cfg, userRepo)
	shippingH.RegisterRoutes(public)

	//通知poller（ブローカー設定があるときだけ）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.KafkaBrokers) > 0 {
		poller := notification.NewOutboxPoller(outboxRepo, cfg.KafkaBrokers, "shop.notifications", logger, 2*time.Second)
		go poller.Run(ctx)
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not set, notifications will stay queued")
	}

	//Server起動
	addr := cfg.Port
	if !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}

	go func() {
		if err := e.Start(addr); err != nil {
			logger.Info().Err(err).Msg("server stopped")
		}
	}()

	//SIGINT/SIGTERMで停止
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
