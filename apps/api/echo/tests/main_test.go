package tests

import (
	"log"
	"os"
	"testing"

	"github.com/freetutor/freetutor/core"
)

var testLogger *log.Logger

func TestMain(m *testing.M) {
	testLogger = log.New(os.Stdout, "TEST : ", log.LstdFlags|log.Lshortfile)

	// the error handler leaks raw error strings in debug mode
	core.Conf.Debug = false
	core.Conf.TestMode = true

	os.Exit(m.Run())
}
