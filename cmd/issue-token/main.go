package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/service"
	"golang.org/x/term"
)

// issue-token signs a student token for local testing and makes it the
// student's active session.
func main() {
	var (
		studentID int
		classID   int
		ttl       time.Duration
	)
	flag.IntVar(&studentID, "student", 0, "Student ID")
	flag.IntVar(&classID, "class", 0, "Class ID")
	flag.DurationVar(&ttl, "ttl", 4*time.Hour, "Token lifetime")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	authService := service.NewAuthService(cfg, rdb)

	// ─── CLI Input ─────────────────────────────────────────────────────
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	reader := bufio.NewReader(os.Stdin)

	if studentID == 0 {
		if !interactive {
			fmt.Println("Error: -student is required")
			os.Exit(2)
		}
		studentID = promptInt(reader, "Enter Student ID: ", 0)
		if studentID <= 0 {
			fmt.Println("Error: Student ID must be a positive number")
			os.Exit(2)
		}
		classID = promptInt(reader, "Enter Class ID (default 0, any class): ", classID)
	}

	// ─── Logic ─────────────────────────────────────────────────────────
	token, err := authService.IssueStudentToken(ctx, studentID, classID, ttl)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	if interactive {
		fmt.Printf("\nToken for student %d (valid %s):\n", studentID, ttl)
	}
	fmt.Println(token)
}

func promptInt(reader *bufio.Reader, label string, def int) int {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	v, err := strconv.Atoi(line)
	if err != nil {
		return -1
	}
	return v
}
