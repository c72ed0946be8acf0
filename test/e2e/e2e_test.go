//go:build e2e
// +build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8080"
	e2eStudentID   = 990001
	e2eClassID     = 77
)

var (
	baseURL      string
	studentToken string
	quizID       string
	singleID     string
	blankID      string
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	cfg := config.Load()

	if err := seedQuiz(cfg); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}
	if err := issueToken(cfg); err != nil {
		fmt.Printf("Token setup failed: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func seedQuiz(cfg *config.Config) error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer conn.Close(ctx)

	// Cleanup previous test data (order matters due to FK)
	if _, err := conn.Exec(ctx, `DELETE FROM attempt_integrity_events WHERE student_id = $1`, e2eStudentID); err != nil {
		return fmt.Errorf("cleanup events: %w", err)
	}
	if _, err := conn.Exec(ctx, `DELETE FROM quiz_attempts WHERE student_id = $1`, e2eStudentID); err != nil {
		return fmt.Errorf("cleanup attempts: %w", err)
	}

	err = conn.QueryRow(ctx,
		`INSERT INTO questions (type, prompt, options, correct_index, points)
		 VALUES ('single-correct', 'E2E single', '[{"text":"a"},{"text":"b"},{"text":"c"}]', 1, 2)
		 RETURNING id`).Scan(&singleID)
	if err != nil {
		return fmt.Errorf("insert single question: %w", err)
	}
	err = conn.QueryRow(ctx,
		`INSERT INTO questions (type, prompt, expected_text, points)
		 VALUES ('fill-in-blank', 'E2E blank', '443', 3)
		 RETURNING id`).Scan(&blankID)
	if err != nil {
		return fmt.Errorf("insert blank question: %w", err)
	}

	err = conn.QueryRow(ctx,
		`INSERT INTO quizzes (title, class_id, question_ids, duration_minutes, tab_switch_threshold,
		                      total_points, released, answers_released)
		 VALUES ('E2E Quiz', $1, ARRAY[$2::uuid, $3::uuid], 5, 3, 5, TRUE, TRUE)
		 RETURNING id`, e2eClassID, singleID, blankID).Scan(&quizID)
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func issueToken(cfg *config.Config) error {
	ctx := context.Background()
	rdb, err := database.NewRedisClient(ctx, cfg, zerolog.Nop())
	if err != nil {
		return err
	}
	defer rdb.Close()

	// Stale progress from an earlier run would resume the wrong attempt.
	_ = rdb.Del(ctx, config.CacheKey.ProgressKey(e2eStudentID, uuid.MustParse(quizID))).Err()

	studentToken, err = service.NewAuthService(cfg, rdb).IssueStudentToken(ctx, e2eStudentID, e2eClassID, time.Hour)
	return err
}

func TestE2EQuizFlow(t *testing.T) {
	t.Run("OverviewBeforeStart", func(t *testing.T) {
		resp, err := get("/api/v1/student/quizzes/"+quizID, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				Status        string `json:"status"`
				QuestionCount int    `json:"question_count"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.Status != "NOT_STARTED" || body.Data.QuestionCount != 2 {
			t.Fatalf("unexpected overview: %+v", body.Data)
		}
	})

	t.Run("TakeQuiz", func(t *testing.T) {
		conn := dial(t)
		defer conn.Close()

		snap := waitSnapshot(t, conn, "awaiting_ready")
		if snap.Total != 2 {
			t.Fatalf("expected 2 questions, got %d", snap.Total)
		}

		send(t, conn, map[string]interface{}{"action": "start"})
		waitFor(t, conn, "request_fullscreen")
		send(t, conn, map[string]interface{}{"action": "fullscreen_entered"})
		waitFor(t, conn, "attach_sensors")
		waitSnapshot(t, conn, "running")

		send(t, conn, map[string]interface{}{"action": "select_answer", "ref": "a1",
			"payload": map[string]interface{}{"question_id": singleID, "option": 1}})
		send(t, conn, map[string]interface{}{"action": "select_answer", "ref": "a2",
			"payload": map[string]interface{}{"question_id": blankID, "text": " 443 "}})

		send(t, conn, map[string]interface{}{"action": "clipboard", "ref": "c1",
			"payload": map[string]interface{}{"op": "copy"}})
		verdict := waitFor(t, conn, "verdict")
		if verdict.Ref != "c1" || !strings.Contains(string(verdict.Data), `"suppress":true`) {
			t.Fatalf("expected suppressing verdict for c1, got %s %s", verdict.Ref, verdict.Data)
		}

		send(t, conn, map[string]interface{}{"action": "submit"})
		waitNotice(t, conn, "SUBMITTED")

		complete := waitFor(t, conn, "complete")
		var data struct {
			Score int `json:"score"`
		}
		if err := json.Unmarshal(complete.Data, &data); err != nil {
			t.Fatalf("decode complete: %v", err)
		}
		if data.Score != 100 {
			t.Fatalf("expected score 100, got %d", data.Score)
		}
	})

	t.Run("Result", func(t *testing.T) {
		resp, err := get("/api/v1/student/quizzes/"+quizID+"/attempt", studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data struct {
				Score          int `json:"score"`
				AchievedPoints int `json:"achieved_points"`
				Questions      []struct {
					Correct *bool `json:"correct"`
				} `json:"questions"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.Score != 100 || body.Data.AchievedPoints != 5 {
			t.Fatalf("unexpected result: %+v", body.Data)
		}
		for i, q := range body.Data.Questions {
			if q.Correct == nil || !*q.Correct {
				t.Errorf("question %d should be shown as correct", i)
			}
		}
	})

	t.Run("ReconnectAfterSubmit", func(t *testing.T) {
		conn := dial(t)
		defer conn.Close()

		waitNotice(t, conn, "ALREADY_SUBMITTED")
		waitFor(t, conn, "complete")
	})
}

// Helpers

type serverMessage struct {
	Event string          `json:"event"`
	Ref   string          `json:"ref"`
	Data  json.RawMessage `json:"data"`
}

type snapshot struct {
	State string `json:"state"`
	Total int    `json:"total"`
}

func dial(t *testing.T) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(baseURL)
	if err != nil {
		t.Fatalf("parse base url: %v", err)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/ws/v1/student/quizzes/" + quizID + "/session"
	u.RawQuery = "token=" + url.QueryEscape(studentToken)

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			t.Fatalf("dial failed with status %d: %s", resp.StatusCode, readBody(resp))
		}
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// waitFor reads until an event of the given type arrives.
func waitFor(t *testing.T, conn *websocket.Conn, event string) serverMessage {
	t.Helper()
	return waitUntil(t, conn, func(m serverMessage) bool { return m.Event == event })
}

func waitSnapshot(t *testing.T, conn *websocket.Conn, state string) snapshot {
	t.Helper()
	var snap snapshot
	waitUntil(t, conn, func(m serverMessage) bool {
		if m.Event != "snapshot" {
			return false
		}
		_ = json.Unmarshal(m.Data, &snap)
		return snap.State == state
	})
	return snap
}

func waitNotice(t *testing.T, conn *websocket.Conn, code string) {
	t.Helper()
	waitUntil(t, conn, func(m serverMessage) bool {
		if m.Event != "notice" {
			return false
		}
		var n struct {
			Code string `json:"code"`
		}
		_ = json.Unmarshal(m.Data, &n)
		return n.Code == code
	})
}

func waitUntil(t *testing.T, conn *websocket.Conn, match func(serverMessage) bool) serverMessage {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Event == "error" {
			t.Logf("server error event: %s", msg.Data)
		}
		if match(msg) {
			return msg
		}
	}
}

func get(path string, token string) (*http.Response, error) {
	req, err := http.NewRequest("GET", baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("json decode: %v", err)
	}
}
