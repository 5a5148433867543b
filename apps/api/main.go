package main

import (
	"log"
	"net"
	"os"

	echoapi "github.com/freetutor/freetutor/apps/api/echo"
	"github.com/freetutor/freetutor/core"
	"github.com/freetutor/freetutor/core/matching"
	"github.com/freetutor/freetutor/core/profile"
	"github.com/freetutor/freetutor/core/user"
	emailsvc "github.com/freetutor/freetutor/services/email"
	logsvc "github.com/freetutor/freetutor/services/logger"
	storagesvc "github.com/freetutor/freetutor/services/storage"
	"github.com/freetutor/freetutor/storage/database"
)

func main() {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	var logger core.Logger
	if core.Conf.Debug || core.Conf.RollbarToken == "" {
		logger = logsvc.NewStdLogger(stdLogger)
	} else {
		logger = logsvc.NewRollbarLogger(stdLogger, core.Conf)
	}

	errAndDie(core.Conf.Validate())

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer db.Close()

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	var docStorage core.DocumentStorage
	if core.Conf.OSS.Endpoint == "" {
		docStorage = storagesvc.NewDummyStorage()
	} else {
		docStorage, err = storagesvc.NewOSSStorage(core.Conf)
		errAndDie(err)
	}

	usrSvc := user.NewService(database.NewUserRepository(db), mailSvc)
	profSvc := profile.NewService(database.NewProfileRepository(db), usrSvc, mailSvc)
	matchSvc := matching.NewService(database.NewMatchingRepository(db), profSvc, usrSvc, mailSvc)

	// start API server
	app := echoapi.NewServer(
		&echoapi.Options{
			Address:     net.JoinHostPort(core.Conf.Server.Host, core.Conf.Server.Port),
			UserSvc:     usrSvc,
			ProfileSvc:  profSvc,
			MatchingSvc: matchSvc,
			DocStorage:  docStorage,
			Logger:      logger,
		},
	)
	errAndDie(app.Start())
}

func errAndDie(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
