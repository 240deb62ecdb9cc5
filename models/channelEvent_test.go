package models

import (
	"fmt"
	"testing"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	dup := &mysqlDriver.MySQLError{Number: 1062, Message: "Duplicate entry"}
	if !IsDuplicateKeyErr(dup) {
		t.Fatal("mysql error 1062 must be a duplicate key error")
	}
	if !IsDuplicateKeyErr(fmt.Errorf("create: %w", dup)) {
		t.Fatal("wrapped 1062 must still be detected")
	}
	if IsDuplicateKeyErr(&mysqlDriver.MySQLError{Number: 1213}) {
		t.Fatal("deadlock is not a duplicate key error")
	}
	if IsDuplicateKeyErr(fmt.Errorf("plain error")) {
		t.Fatal("non-mysql error is not a duplicate key error")
	}
}

func TestAttemptsExhausted(t *testing.T) {
	event := ChannelEvent{Attempts: 2, MaxAttempts: 3}
	if event.AttemptsExhausted() {
		t.Fatal("2 of 3 attempts is not exhausted")
	}
	event.Attempts = 3
	if !event.AttemptsExhausted() {
		t.Fatal("3 of 3 attempts is exhausted")
	}
	event.Attempts = 4
	if !event.AttemptsExhausted() {
		t.Fatal("over budget is exhausted")
	}
}

func TestEntityMappingIsActive(t *testing.T) {
	active := true
	mapping := EntityMapping{ActiveFlag: &active}
	if !mapping.IsActive() {
		t.Fatal("flag 1 means active")
	}
	mapping.ActiveFlag = nil
	if mapping.IsActive() {
		t.Fatal("NULL flag means deactivated")
	}
}
