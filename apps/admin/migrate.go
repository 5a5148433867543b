package main

import (
	"github.com/freetutor/freetutor/core"
	"github.com/freetutor/freetutor/storage/database"
)

var gooseRunFunc = database.RunGoose // mockable

func (cli *commandLine) createDB() error {
	return database.CreateIfNotExist(core.Conf)
}

func (cli *commandLine) migrate(args []string) error {
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], cli.db.DB, arguments...)
}
