// Package inmemdb provides map backed repositories for tests and demos.
package inmemdb

import (
	"sync"

	"github.com/trezcool/elimu/core/chat"
	"github.com/trezcool/elimu/core/course"
	"github.com/trezcool/elimu/core/notification"
	"github.com/trezcool/elimu/core/status"
	"github.com/trezcool/elimu/core/user"
)

type (
	DB struct {
		user         *userTable
		course       *courseTable
		chat         *chatTable
		notification *notificationTable
		status       *statusTable
	}

	userTable struct {
		table map[int]*user.User
		pk    int
		mutex sync.RWMutex
	}

	courseTable struct {
		table       map[int]*course.Course
		teachings   map[int][]int // course id -> teacher ids
		enrollments []course.Enrollment
		materials   []course.Material
		pk          int
		enrPK       int
		matPK       int
		mutex       sync.RWMutex
	}

	chatTable struct {
		conversations map[int]*chat.Conversation
		messages      []chat.Message
		pk            int
		msgPK         int
		mutex         sync.RWMutex
	}

	notificationTable struct {
		table []*notification.Notification
		pk    int
		mutex sync.RWMutex
	}

	statusTable struct {
		table []status.Update
		pk    int
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:         &userTable{table: make(map[int]*user.User)},
		course:       &courseTable{table: make(map[int]*course.Course), teachings: make(map[int][]int)},
		chat:         &chatTable{conversations: make(map[int]*chat.Conversation)},
		notification: &notificationTable{},
		status:       &statusTable{},
	}
}
