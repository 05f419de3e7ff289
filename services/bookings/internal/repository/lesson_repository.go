package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/diagnosis/autoescola/services/bookings/internal/domain"
)

const uniqueViolation = "23505"

// Querier is the part of *pgxpool.Pool the lesson repository uses.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type LessonRepository interface {
	Create(ctx context.Context, l *domain.Lesson) (*domain.Lesson, error)
	CountCompleted(ctx context.Context, studentID string) (int, error)
	ListForInstructorUser(ctx context.Context, userID string, from string, limit, offset int) ([]domain.InstructorLesson, error)
	GetForInstructorUser(ctx context.Context, lessonID int64, userID string) (*domain.Lesson, error)
	UpdateStatus(ctx context.Context, lessonID int64, userID string, from, to domain.LessonStatus) (*domain.Lesson, error)
}

type lessonRepository struct {
	pool Querier
}

func NewLessonRepository(pool Querier) LessonRepository {
	return &lessonRepository{pool: pool}
}

const lessonCols = `id, student_id, instructor_id, vehicle_id, location,
to_char(lesson_date, 'YYYY-MM-DD'), to_char(lesson_time, 'HH24:MI'),
duration_minutes, status, created_at`

const qualifiedLessonCols = `l.id, l.student_id, l.instructor_id, l.vehicle_id, l.location,
to_char(l.lesson_date, 'YYYY-MM-DD'), to_char(l.lesson_time, 'HH24:MI'),
l.duration_minutes, l.status, l.created_at`

func scanLesson(row pgx.Row, l *domain.Lesson, extra ...any) error {
	dest := []any{
		&l.ID, &l.StudentID, &l.InstructorID, &l.VehicleID, &l.Location,
		&l.Date, &l.Time,
		&l.DurationMinutes, &l.Status, &l.CreatedAt,
	}
	return row.Scan(append(dest, extra...)...)
}

// Create inserts a scheduled lesson. A second non-cancelled lesson for the
// same instructor, date and time violates lessons_instructor_slot_key and is
// reported as domain.ErrSlotTaken.
func (r *lessonRepository) Create(ctx context.Context, l *domain.Lesson) (*domain.Lesson, error) {
	const q = `INSERT INTO lessons (
		student_id, instructor_id, vehicle_id, location,
		lesson_date, lesson_time, duration_minutes, status
	) VALUES ($1,$2,$3,$4,$5::date,$6::time,$7,$8)
	RETURNING ` + lessonCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	duration := l.DurationMinutes
	if duration == 0 {
		duration = domain.LessonDurationMinutes
	}
	status := l.Status
	if status == "" {
		status = domain.LessonScheduled
	}

	var out domain.Lesson
	err := scanLesson(r.pool.QueryRow(ctx, q,
		l.StudentID, l.InstructorID, l.VehicleID, l.Location,
		l.Date, l.Time, duration, status,
	), &out)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrSlotTaken
		}
		return nil, err
	}
	return &out, nil
}

func (r *lessonRepository) CountCompleted(ctx context.Context, studentID string) (int, error) {
	const q = `SELECT count(*) FROM lessons WHERE student_id=$1 AND status=$2`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var n int
	if err := r.pool.QueryRow(ctx, q, studentID, domain.LessonCompleted).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListForInstructorUser lists lessons on or after from for the instructor
// linked to the given account.
func (r *lessonRepository) ListForInstructorUser(ctx context.Context, userID string, from string, limit, offset int) ([]domain.InstructorLesson, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	const q = `SELECT ` + qualifiedLessonCols + `,
		COALESCE(p.full_name, '')
	FROM lessons l
	JOIN instructors i ON i.id = l.instructor_id
	LEFT JOIN profiles p ON p.user_id = l.student_id
	WHERE i.user_id = $1 AND l.lesson_date >= $2::date AND l.status <> 'cancelled'
	ORDER BY l.lesson_date, l.lesson_time
	LIMIT $3 OFFSET $4`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.pool.Query(ctx, q, userID, from, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lessons []domain.InstructorLesson
	for rows.Next() {
		var il domain.InstructorLesson
		if err := scanLesson(rows, &il.Lesson, &il.StudentName); err != nil {
			return nil, err
		}
		lessons = append(lessons, il)
	}
	return lessons, rows.Err()
}

// GetForInstructorUser loads a lesson on the agenda of the instructor linked
// to the given account. Lessons of other instructors are reported as
// domain.ErrLessonNotFound.
func (r *lessonRepository) GetForInstructorUser(ctx context.Context, lessonID int64, userID string) (*domain.Lesson, error) {
	const q = `SELECT ` + qualifiedLessonCols + `
	FROM lessons l
	JOIN instructors i ON i.id = l.instructor_id
	WHERE l.id = $1 AND i.user_id = $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var l domain.Lesson
	if err := scanLesson(r.pool.QueryRow(ctx, q, lessonID, userID), &l); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrLessonNotFound
		}
		return nil, err
	}
	return &l, nil
}

// UpdateStatus moves the lesson from one status to another. The update only
// applies while the stored status still equals from, so a concurrent change
// surfaces as domain.ErrInvalidTransition.
func (r *lessonRepository) UpdateStatus(ctx context.Context, lessonID int64, userID string, from, to domain.LessonStatus) (*domain.Lesson, error) {
	const q = `UPDATE lessons l SET status = $4
	FROM instructors i
	WHERE l.id = $1 AND i.id = l.instructor_id AND i.user_id = $2 AND l.status = $3
	RETURNING ` + qualifiedLessonCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var l domain.Lesson
	if err := scanLesson(r.pool.QueryRow(ctx, q, lessonID, userID, from, to), &l); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInvalidTransition
		}
		return nil, err
	}
	return &l, nil
}
