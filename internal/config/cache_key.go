package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key holding the newest token id of a student
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// ProgressKey returns the cache key for a student's in-progress quiz snapshot
func (r *CacheKeyStruct) ProgressKey(studentID int, quizID uuid.UUID) string {
	return fmt.Sprintf("quiz:progress:student:%d:quiz:%s", studentID, quizID)
}

// SubmissionBackupKey returns the cache key for a final attempt that could not be submitted
func (r *CacheKeyStruct) SubmissionBackupKey(studentID int, quizID uuid.UUID) string {
	return fmt.Sprintf("quiz:submission_backup:student:%d:quiz:%s", studentID, quizID)
}

// QuizKey returns the cache key for a quiz definition
func (r *CacheKeyStruct) QuizKey(quizID uuid.UUID) string {
	return fmt.Sprintf("quiz:%s:definition", quizID)
}

// QuestionKey returns the cache key for a single question payload
func (r *CacheKeyStruct) QuestionKey(questionID uuid.UUID) string {
	return fmt.Sprintf("question:%s:payload", questionID)
}

// QuizMonitorChannel returns the Redis PubSub channel name for a quiz monitor
func (r *CacheKeyStruct) QuizMonitorChannel(quizID uuid.UUID) string {
	return fmt.Sprintf("quiz:%s:monitor", quizID)
}

var CacheKey = NewCacheKeyStruct()
