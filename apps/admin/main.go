package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/prediction"
	"github.com/trezcool/shule/core/seating"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
	layoutsvc "github.com/trezcool/shule/services/layout"
	logsvc "github.com/trezcool/shule/services/logger"
	predictsvc "github.com/trezcool/shule/services/predictor"
	"github.com/trezcool/shule/storage/database"
	sqlxrepos "github.com/trezcool/shule/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(logsvc.NewConsole(os.Stderr, "ADMIN", conf.Debug), conf)
	logger.Enable(!conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	stdntSvc := student.NewService(sqlxrepos.NewStudentRepository(db), conf)
	cli := commandLine{
		conf:   conf,
		db:     db,
		usrSvc: user.NewService(sqlxrepos.NewUserRepository(db), validate),
		seatingSvc: seating.NewService(
			db,
			sqlxrepos.NewSeatingRepository(db),
			stdntSvc,
			layoutsvc.NewClient(conf, logger),
			validate,
			logger,
		),
		predictionSvc: prediction.NewService(
			db,
			sqlxrepos.NewPredictionRepository(db),
			stdntSvc,
			predictsvc.NewClient(conf, logger),
			validate,
			logger,
			conf,
		),
		out: os.Stdout,
	}

	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
