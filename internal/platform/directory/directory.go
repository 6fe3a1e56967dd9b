// Package directory resolves actor scope for visibility decisions: which
// children a parent is responsible for, which classes a teacher is assigned
// to, and which class a student belongs to. The in-memory implementation is
// loaded from configuration or fixtures; a school information system would
// normally back this in production.
package directory

import (
	"context"
	"errors"
	"sync"
)

var ErrStudentNotFound = errors.New("student not found in directory")

// Directory answers scope questions about actors and students.
type Directory interface {
	// ChildrenOf returns the student IDs the given parent is responsible for.
	ChildrenOf(ctx context.Context, parentID string) ([]string, error)
	// ClassesOf returns the class IDs the given teacher is assigned to.
	ClassesOf(ctx context.Context, teacherID string) ([]string, error)
	// ClassOf returns the class a student belongs to.
	ClassOf(ctx context.Context, studentID string) (string, error)
	// StudentsIn returns the student IDs enrolled in a class.
	StudentsIn(ctx context.Context, classID string) ([]string, error)
}

// InMemory is a thread-safe Directory backed by maps.
type InMemory struct {
	mu       sync.RWMutex
	children map[string][]string // parent -> students
	classes  map[string][]string // teacher -> classes
	enrolled map[string]string   // student -> class
	roster   map[string][]string // class -> students
}

// NewInMemory returns an empty in-memory directory.
func NewInMemory() *InMemory {
	return &InMemory{
		children: make(map[string][]string),
		classes:  make(map[string][]string),
		enrolled: make(map[string]string),
		roster:   make(map[string][]string),
	}
}

// AddChild links a student to a parent.
func (d *InMemory) AddChild(parentID, studentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.children[parentID] = append(d.children[parentID], studentID)
}

// AssignTeacher assigns a teacher to a class.
func (d *InMemory) AssignTeacher(teacherID, classID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classes[teacherID] = append(d.classes[teacherID], classID)
}

// Enroll places a student in a class.
func (d *InMemory) Enroll(studentID, classID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enrolled[studentID] = classID
	d.roster[classID] = append(d.roster[classID], studentID)
}

func (d *InMemory) ChildrenOf(_ context.Context, parentID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.children[parentID]))
	copy(out, d.children[parentID])
	return out, nil
}

func (d *InMemory) ClassesOf(_ context.Context, teacherID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.classes[teacherID]))
	copy(out, d.classes[teacherID])
	return out, nil
}

func (d *InMemory) ClassOf(_ context.Context, studentID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	class, ok := d.enrolled[studentID]
	if !ok {
		return "", ErrStudentNotFound
	}
	return class, nil
}

func (d *InMemory) StudentsIn(_ context.Context, classID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, len(d.roster[classID]))
	copy(out, d.roster[classID])
	return out, nil
}
