package main

import (
	"database/sql"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/trezcool/goose"

	appfs "github.com/trezcool/elimu/fs"
	"github.com/trezcool/elimu/storage/database"
)

var gooseRunFunc = runGoose // mockable

func (cli *commandLine) migrate(args []string) error {
	dir, err := database.MigrationsDir(cli.db)
	if err != nil {
		return err
	}
	return gooseRunFunc(args[0], cli.db.DB, appfs.FS, dir, args[1:]...)
}

func runGoose(command string, db *sql.DB, fsys fs.FS, dir string, args ...string) error {
	switch command {
	case "up":
		return goose.Up(db, fsys, dir)
	case "up-by-one":
		return goose.UpByOne(db, fsys, dir)
	case "up-to":
		version, err := versionArg(command, args)
		if err != nil {
			return err
		}
		return goose.UpTo(db, fsys, dir, version)
	case "down":
		return goose.Down(db, fsys, dir)
	case "down-to":
		version, err := versionArg(command, args)
		if err != nil {
			return err
		}
		return goose.DownTo(db, fsys, dir, version)
	case "redo":
		return goose.Redo(db, fsys, dir)
	case "version":
		version, err := goose.GetDBVersion(db)
		if err != nil {
			return err
		}
		fmt.Printf("goose: version %v\n", version)
		return nil
	default:
		return fmt.Errorf("%q: no such command", command)
	}
}

func versionArg(command string, args []string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("%s must be of form: admin migrate %s VERSION", command, command)
	}
	version, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version must be a number (got '%s')", args[0])
	}
	return version, nil
}
