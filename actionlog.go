/*
	botgate - a request firewall by ScraperWall
	Copyright (C) 2021 ScraperWall, Tobias von Dewitz <tobias@scraperwall.com>

	This program is free software: you can redistribute it and/or modify it
	under the terms of the GNU Affero General Public License as published by
	the Free Software Foundation, either version 3 of the License, or (at your
	option) any later version.

	This program is distributed in the hope that it will be useful, but WITHOUT
	ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
	FITNESS FOR A PARTICULAR PURPOSE. See the GNU Affero General Public License
	for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program. If not, see <https://www.gnu.org/licenses/>.
*/

package botgate

import (
	"time"

	"github.com/scraperwall/botgate/data"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ActionLogger receives one record per decided request
type ActionLogger interface {
	Add(rec data.ActionRecord) error
}

// FileActionLog writes the action log as JSON lines into a rotated file
type FileActionLog struct {
	logger *log.Logger
	writer *lumberjack.Logger
}

// NewFileActionLog creates an action log in filename. The file is rotated at
// 100MB and old files are kept compressed for 30 days.
func NewFileActionLog(filename string) *FileActionLog {
	writer := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
		Compress:   true,
	}

	logger := log.New()
	logger.SetOutput(writer)
	logger.SetLevel(log.InfoLevel)
	logger.SetFormatter(&log.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: log.FieldMap{
			log.FieldKeyTime: "timestamp",
			log.FieldKeyMsg:  "event",
		},
	})

	return &FileActionLog{
		logger: logger,
		writer: writer,
	}
}

// Add appends a single record
func (fal *FileActionLog) Add(rec data.ActionRecord) error {
	fal.logger.WithFields(log.Fields{
		"ip":          rec.IP,
		"session_id":  rec.SessionID,
		"action_code": rec.ActionCode,
		"reason":      int(rec.Reason),
	}).WithTime(rec.Timestamp).Info("action")

	return nil
}

// Rotate starts a new log file
func (fal *FileActionLog) Rotate() error {
	return fal.writer.Rotate()
}

// Close closes the current log file
func (fal *FileActionLog) Close() error {
	return fal.writer.Close()
}
