package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/freetutor/freetutor/core/user"
	dummydb "github.com/freetutor/freetutor/storage/database/dummy"
)

func setup(t *testing.T) *commandLine {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("opening dummy DB: %v", err)
	}
	return &commandLine{
		db:      &sqlx.DB{},
		usrRepo: dummydb.NewUserRepository(db),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
}

func runCliTests(t *testing.T, cli *commandLine, tests []cliTest) {
	t.Helper()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(append([]string{"admin"}, tt.args...))
			if tt.wantErr != nil {
				if err != tt.wantErr {
					t.Errorf("run() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if tt.wantErrStr != "" {
				if err == nil || err.Error() != tt.wantErrStr {
					t.Errorf("run() error = %v, wantErrStr %q", err, tt.wantErrStr)
				}
				return
			}
			if err != nil {
				t.Errorf("run() unexpected error: %v", err)
			}
		})
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s requires a VERSION argument", command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to requires a VERSION argument"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "status", args: []string{"migrate", "status"}},
	}
	runCliTests(t, cli, tests)
}

func Test_commandLine_createAdmin(t *testing.T) {
	cli := setup(t)
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("Str0ng&Secret"), nil }

	tests := []cliTest{
		{name: "no args", args: []string{"createadmin"}, wantErr: errHelp},
		{name: "missing email", args: []string{"createadmin", "-name", "Root Admin"}, wantErr: errHelp},
		{name: "ok", args: []string{"createadmin", "-name", "Root Admin", "-email", "admin@test.cd"}},
		{name: "existing user is promoted", args: []string{"createadmin", "-name", "Root Admin", "-email", "admin@test.cd"}},
	}
	runCliTests(t, cli, tests)

	usr, err := cli.usrRepo.GetUser(context.Background(), user.GetFilter{Email: "admin@test.cd"})
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if !usr.IsAdmin() {
		t.Errorf("expected admin role, got %q", usr.Role)
	}
	if !usr.Active() {
		t.Error("expected the admin account to be active")
	}
	if err := usr.CheckPassword("Str0ng&Secret"); err != nil {
		t.Errorf("CheckPassword() error = %v", err)
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	readPasswordFunc = func(fd int) ([]byte, error) { return []byte("N3w&Secret"), nil }

	usr := user.User{Name: "Jane Poe", Email: "jane@test.cd", Role: user.RoleStudent}
	usr.SetActive(true)
	if err := usr.SetPassword("Old&Secret1"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	usr, err := cli.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "unknown email", args: []string{"resetpassword", "-email", "nobody@test.cd"}, wantErr: user.ErrNotFound},
		{name: "ok", args: []string{"resetpassword", "-email", "jane@test.cd"}},
	}
	runCliTests(t, cli, tests)

	usr, err = cli.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if err := usr.CheckPassword("N3w&Secret"); err != nil {
		t.Errorf("CheckPassword() error = %v", err)
	}
}
