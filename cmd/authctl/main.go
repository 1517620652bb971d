package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"authcore/internal/cache"
	"authcore/internal/config"
	"authcore/internal/db"
	"authcore/internal/db/migrations"
	"authcore/internal/email"
	"authcore/internal/password"
	"authcore/internal/repository"
	"authcore/internal/service"
)

const usage = `uso: authctl <comando>

comandos:
  migrate        aplica el esquema embebido
  create-user    registra una cuenta (queda sin verificar)
  verify-email   envia y confirma el codigo de verificacion
  login          recorre el login en dos pasos e imprime los tokens`

type services struct {
	users *service.UserService
	login *service.LoginService
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(2)
	}

	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	// NewExample loguea en Debug: el log sender imprime los codigos en consola.
	logger := zap.NewExample()
	defer func() { _ = logger.Sync() }()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if os.Args[1] == "migrate" {
		if err := db.Migrate(ctx, pool, migrations.FS); err != nil {
			log.Fatalf("migrar: %v", err)
		}
		fmt.Println("esquema al dia")
		return
	}

	svc := buildServices(cfg, logger, repository.NewPgUserRepository(pool))

	switch os.Args[1] {
	case "create-user":
		err = createUserFlow(ctx, reader, svc.users)
	case "verify-email":
		err = verifyEmailFlow(ctx, reader, svc.users)
	case "login":
		err = loginFlow(ctx, reader, svc.login)
	default:
		fmt.Println(usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

// buildServices arma el core con cache en proceso y el log sender.
func buildServices(cfg *config.Config, logger *zap.Logger, users repository.UserRepository) services {
	mem := cache.NewMemoryCache()
	hasher := password.NewDefault()
	sender := email.NewLogSender(logger)
	policies := service.DefaultRatePolicies()

	limiter := service.NewRateLimiter(logger, mem, cfg.DependencyTimeout)
	otp := service.NewOTPService(logger, users, sender, cfg.OTPTTL, cfg.DependencyTimeout)
	tokens := service.NewJWTService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL,
		service.NewCacheRefreshTokenStore(mem),
		service.WithIssuer(cfg.JWTIssuer),
	)
	credentials := service.NewCredentialVerifier(logger, users, hasher, cfg.DependencyTimeout)
	sessions := service.NewSessionCache(logger, mem, users, cfg.SessionCacheTTL, cfg.DependencyTimeout)

	return services{
		users: service.NewUserService(logger, users, hasher, otp, limiter, policies, cfg.DependencyTimeout),
		login: service.NewLoginService(logger, users, credentials, otp, tokens, limiter, policies, sessions),
	}
}

func createUserFlow(ctx context.Context, reader *bufio.Reader, users *service.UserService) error {
	emailAddr := prompt(reader, "Email: ")
	name := prompt(reader, "Nombre (opcional): ")
	plain := prompt(reader, "Password: ")

	user, err := users.Register(ctx, service.RegisterInput{Email: emailAddr, Password: plain, DisplayName: name})
	if err != nil {
		return err
	}
	fmt.Printf("cuenta creada: %s (%s)\n", user.ID, user.Email)
	return nil
}

func verifyEmailFlow(ctx context.Context, reader *bufio.Reader, users *service.UserService) error {
	emailAddr := prompt(reader, "Email: ")
	if err := users.RequestVerification(ctx, emailAddr); err != nil {
		return err
	}
	code := prompt(reader, "Codigo: ")
	user, err := users.ConfirmEmail(ctx, emailAddr, code)
	if err != nil {
		return err
	}
	fmt.Printf("email verificado: %s\n", user.Email)
	return nil
}

func loginFlow(ctx context.Context, reader *bufio.Reader, login *service.LoginService) error {
	emailAddr := prompt(reader, "Email: ")
	plain := prompt(reader, "Password: ")

	one, err := login.StepOne(ctx, emailAddr, plain, "")
	if err != nil {
		return fmt.Errorf("paso 1 (%s): %w", one.FailedAt, err)
	}
	fmt.Printf("codigo enviado, vence %s\n", one.OTP.ExpiresAt.Local().Format(time.Kitchen))

	code := prompt(reader, "Codigo: ")
	two, err := login.StepTwo(ctx, emailAddr, code)
	if err != nil {
		return fmt.Errorf("paso 2 (%s): %w", two.FailedAt, err)
	}
	fmt.Printf("estado: %s\nusuario: %s\naccess: %s\nrefresh: %s\n",
		two.State, two.User.ID, two.Tokens.AccessToken, two.Tokens.RefreshToken)
	return nil
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
