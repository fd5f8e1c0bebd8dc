package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CheckpointKey returns the cache key for a user's in-progress checkpoint
func (r *CacheKeyStruct) CheckpointKey(examID, userID string) string {
	return fmt.Sprintf("user:%s:exam:%s:checkpoint", userID, examID)
}

// SubmittedMarkerKey returns the cache key marking a (user, exam) pair as submitted
func (r *CacheKeyStruct) SubmittedMarkerKey(examID, userID string) string {
	return fmt.Sprintf("user:%s:exam:%s:submitted", userID, examID)
}

// SessionLeaseKey returns the key naming the client that runs a user's exam session
func (r *CacheKeyStruct) SessionLeaseKey(examID, userID string) string {
	return fmt.Sprintf("exam:%s:user:%s:lease", examID, userID)
}

// SubmissionReceiptKey returns the hub-side key that makes submissions idempotent per (exam, user)
func (r *CacheKeyStruct) SubmissionReceiptKey(examID, userID string) string {
	return fmt.Sprintf("exam:%s:user:%s:receipt", examID, userID)
}

// ExamPayloadKey returns the cache key for an exam's payload
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamProctorChannel returns the Redis PubSub channel name for live proctor events
func (r *CacheKeyStruct) ExamProctorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:proctor", examID)
}

var CacheKey = NewCacheKeyStruct()
