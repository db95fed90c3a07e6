package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"zerosum_client/internal/logger"
	"zerosum_client/internal/service"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	sub := flag.String("sub", "operator", "token subject")
	role := flag.String("role", service.RoleOperator, "role: operator or viewer")
	ttl := flag.Duration("ttl", service.DefaultTokenTTL, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Fatal("JWT_SECRET not set")
	}
	if *role != service.RoleOperator && *role != service.RoleViewer {
		logger.Fatal("unknown role", "role", *role)
	}

	service.InitJWT(secret)
	token, err := service.GenerateJWT(*sub, *role, *ttl)
	if err != nil {
		logger.Fatal("failed to generate token", "error", err)
	}

	logger.Info("token issued", "sub", *sub, "role", *role, "expires", time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println(token)
}
