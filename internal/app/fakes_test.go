package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"evaluation_reminders/internal/domain/evaluation"
	"evaluation_reminders/internal/domain/mail"
	"evaluation_reminders/internal/domain/reminder"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// fakeReminderRepo is an in-memory reminder.Repository.
type fakeReminderRepo struct {
	mu            sync.Mutex
	jobs          map[int64]*reminder.Job
	notifications []*reminder.Notification
	nextJobID     int64
	nextNotifID   int64
	updates       int
	listDueErr    error
	updateErr     error
}

func newFakeReminderRepo() *fakeReminderRepo {
	return &fakeReminderRepo{jobs: make(map[int64]*reminder.Job)}
}

func (r *fakeReminderRepo) addJob(j *reminder.Job) *reminder.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextJobID++
	if j.ID == 0 {
		j.ID = r.nextJobID
	}
	cp := *j
	r.jobs[j.ID] = &cp
	return j
}

func (r *fakeReminderRepo) job(id int64) reminder.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.jobs[id]
}

func (r *fakeReminderRepo) notificationsFor(jobID, studentID int64) []reminder.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []reminder.Notification
	for _, n := range r.notifications {
		if n.JobID == jobID && n.StudentID == studentID {
			out = append(out, *n)
		}
	}
	return out
}

func (r *fakeReminderRepo) notificationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
}

func (r *fakeReminderRepo) EnsureJob(ctx context.Context, cycleID, classID int64, nextRunAt time.Time) (*reminder.Job, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.CycleID == cycleID && j.ClassID == classID {
			cp := *j
			return &cp, false, nil
		}
	}
	r.nextJobID++
	j := &reminder.Job{
		ID:        r.nextJobID,
		CycleID:   cycleID,
		ClassID:   classID,
		Status:    reminder.JobStatusPending,
		NextRunAt: sql.NullTime{Time: nextRunAt, Valid: true},
	}
	r.jobs[j.ID] = j
	cp := *j
	return &cp, true, nil
}

func (r *fakeReminderRepo) GetJobByID(ctx context.Context, id int64) (*reminder.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, reminder.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *fakeReminderRepo) GetJobByCycleAndClass(ctx context.Context, cycleID, classID int64) (*reminder.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.CycleID == cycleID && j.ClassID == classID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, reminder.ErrJobNotFound
}

func (r *fakeReminderRepo) ListJobsByStatus(ctx context.Context, statuses []reminder.JobStatus) ([]*reminder.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reminder.Job
	for _, j := range r.jobs {
		for _, st := range statuses {
			if j.Status == st {
				cp := *j
				out = append(out, &cp)
				break
			}
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *fakeReminderRepo) ListDueJobs(ctx context.Context, now, staleBefore time.Time) ([]*reminder.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listDueErr != nil {
		return nil, r.listDueErr
	}
	var out []*reminder.Job
	for _, j := range r.jobs {
		if j.IsDue(now, staleBefore) {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *fakeReminderRepo) ClaimJob(ctx context.Context, id int64, now, staleBefore time.Time, force bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return false, nil
	}
	switch j.Status {
	case reminder.JobStatusPending:
	case reminder.JobStatusRunning:
		if j.LastRunAt.Valid && !j.LastRunAt.Time.Before(staleBefore) {
			return false, nil
		}
	case reminder.JobStatusFailed:
		if !force {
			return false, nil
		}
	default:
		return false, nil
	}
	j.Status = reminder.JobStatusRunning
	j.LastRunAt = sql.NullTime{Time: now, Valid: true}
	return true, nil
}

func (r *fakeReminderRepo) UpdateJob(ctx context.Context, job *reminder.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; !ok {
		return reminder.ErrJobNotFound
	}
	if r.updateErr != nil {
		return r.updateErr
	}
	cp := *job
	r.jobs[job.ID] = &cp
	r.updates++
	return nil
}

func (r *fakeReminderRepo) SetJobStatusForClass(ctx context.Context, cycleID, classID int64, from []reminder.JobStatus, to reminder.JobStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, j := range r.jobs {
		if j.CycleID != cycleID || j.ClassID != classID {
			continue
		}
		for _, st := range from {
			if j.Status == st {
				j.Status = to
				n++
				break
			}
		}
	}
	return n, nil
}

func (r *fakeReminderRepo) CreateNotification(ctx context.Context, n *reminder.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextNotifID++
	n.ID = r.nextNotifID
	cp := *n
	r.notifications = append(r.notifications, &cp)
	return nil
}

func (r *fakeReminderRepo) findPending(id int64) (*reminder.Notification, error) {
	for _, n := range r.notifications {
		if n.ID == id {
			if n.Status != reminder.NotificationPending {
				return nil, reminder.ErrNotificationNotPending
			}
			return n, nil
		}
	}
	return nil, fmt.Errorf("notification %d not found", id)
}

func (r *fakeReminderRepo) MarkNotificationSent(ctx context.Context, id int64, sentAt time.Time, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.findPending(id)
	if err != nil {
		return err
	}
	n.Status = reminder.NotificationSent
	n.SentAt = sql.NullTime{Time: sentAt, Valid: true}
	n.MessageID = messageID
	n.Attempts++
	return nil
}

func (r *fakeReminderRepo) MarkNotificationFailed(ctx context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.findPending(id)
	if err != nil {
		return err
	}
	n.Status = reminder.NotificationFailed
	n.FailureReason = reason
	n.Attempts++
	return nil
}

func (r *fakeReminderRepo) MarkNotificationSkipped(ctx context.Context, id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.findPending(id)
	if err != nil {
		return err
	}
	n.Status = reminder.NotificationSkipped
	n.FailureReason = reason
	return nil
}

func (r *fakeReminderRepo) CountNotificationsByStudent(ctx context.Context, jobID int64) (map[int64]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]int)
	for _, n := range r.notifications {
		if n.JobID == jobID {
			out[n.StudentID]++
		}
	}
	return out, nil
}

func (r *fakeReminderRepo) CountSentByStudent(ctx context.Context, jobID int64) (map[int64]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[int64]int)
	for _, n := range r.notifications {
		if n.JobID == jobID && n.Status == reminder.NotificationSent {
			out[n.StudentID]++
		}
	}
	return out, nil
}

func (r *fakeReminderRepo) ListNotificationsByJob(ctx context.Context, jobID int64) ([]*reminder.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reminder.Notification
	for _, n := range r.notifications {
		if n.JobID == jobID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

// fakeEvalRepo is an in-memory evaluation.Repository.
type fakeEvalRepo struct {
	mu               sync.Mutex
	cycles           map[int64]*evaluation.Cycle
	classes          map[int64]*evaluation.Class
	students         map[int64][]*evaluation.Student // active enrollments per class
	links            map[[2]int64]bool
	evaluations      map[int64]*evaluation.Evaluation
	responses        []*evaluation.Response
	closingReminders map[string]int
	nextEvalID       int64
	nextResponseID   int64

	cycleErr        error
	panicOnClass    bool
	listEvalCalls   int
	onListResponses func()
}

func newFakeEvalRepo() *fakeEvalRepo {
	return &fakeEvalRepo{
		cycles:           make(map[int64]*evaluation.Cycle),
		classes:          make(map[int64]*evaluation.Class),
		students:         make(map[int64][]*evaluation.Student),
		links:            make(map[[2]int64]bool),
		evaluations:      make(map[int64]*evaluation.Evaluation),
		closingReminders: make(map[string]int),
	}
}

func (r *fakeEvalRepo) addCycle(c *evaluation.Cycle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles[c.ID] = c
}

func (r *fakeEvalRepo) addClass(c *evaluation.Class, students ...*evaluation.Student) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[c.ID] = c
	r.students[c.ID] = append(r.students[c.ID], students...)
}

func (r *fakeEvalRepo) addEvaluation(ev *evaluation.Evaluation) *evaluation.Evaluation {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextEvalID++
	if ev.ID == 0 {
		ev.ID = r.nextEvalID
	}
	r.evaluations[ev.ID] = ev
	return ev
}

func (r *fakeEvalRepo) addResponse(evaluationID, studentID, questionID int64, opt evaluation.AnswerOption) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextResponseID++
	r.responses = append(r.responses, &evaluation.Response{
		ID:           r.nextResponseID,
		EvaluationID: evaluationID,
		StudentID:    sql.NullInt64{Int64: studentID, Valid: studentID != 0},
		QuestionID:   questionID,
		Kind:         evaluation.QuestionMultipleChoice,
		Option:       opt,
	})
}

func (r *fakeEvalRepo) GetCycleByID(ctx context.Context, id int64) (*evaluation.Cycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cycleErr != nil {
		return nil, r.cycleErr
	}
	c, ok := r.cycles[id]
	if !ok {
		return nil, evaluation.ErrCycleNotFound
	}
	return c, nil
}

func (r *fakeEvalRepo) ListCyclesByIDs(ctx context.Context, ids []int64) ([]*evaluation.Cycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*evaluation.Cycle
	for _, id := range ids {
		if c, ok := r.cycles[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeEvalRepo) ListOpenCyclesEndingOn(ctx context.Context, day time.Time) ([]*evaluation.Cycle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*evaluation.Cycle
	for _, c := range r.cycles {
		if c.Active && !c.Closed && evaluation.DateOnly(c.EndDate).Equal(evaluation.DateOnly(day)) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *fakeEvalRepo) GetClassByID(ctx context.Context, id int64) (*evaluation.Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicOnClass {
		panic("class lookup exploded")
	}
	c, ok := r.classes[id]
	if !ok {
		return nil, evaluation.ErrClassNotFound
	}
	return c, nil
}

func (r *fakeEvalRepo) AttachClass(ctx context.Context, cycleID, classID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]int64{cycleID, classID}
	if r.links[key] {
		return false, nil
	}
	r.links[key] = true
	return true, nil
}

func (r *fakeEvalRepo) DetachClass(ctx context.Context, cycleID, classID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, [2]int64{cycleID, classID})
	return nil
}

func (r *fakeEvalRepo) ListClassIDsByCycle(ctx context.Context, cycleID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for key := range r.links {
		if key[0] == cycleID {
			out = append(out, key[1])
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out, nil
}

func (r *fakeEvalRepo) CountActiveEnrollments(ctx context.Context, classID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.students[classID]), nil
}

func (r *fakeEvalRepo) ListActiveStudents(ctx context.Context, classID int64) ([]*evaluation.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]*evaluation.Student(nil), r.students[classID]...)
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *fakeEvalRepo) respondents(cycleID, classID int64) map[int64]struct{} {
	ids := make(map[int64]struct{})
	for _, resp := range r.responses {
		ev := r.evaluations[resp.EvaluationID]
		if ev == nil || ev.CycleID != cycleID || ev.ClassID != classID || !resp.StudentID.Valid {
			continue
		}
		ids[resp.StudentID.Int64] = struct{}{}
	}
	return ids
}

func (r *fakeEvalRepo) CountDistinctRespondents(ctx context.Context, cycleID, classID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.respondents(cycleID, classID)), nil
}

func (r *fakeEvalRepo) ListRespondentIDs(ctx context.Context, cycleID, classID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for id := range r.respondents(cycleID, classID) {
		out = append(out, id)
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out, nil
}

func (r *fakeEvalRepo) GetOrCreateEvaluation(ctx context.Context, ev *evaluation.Evaluation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.evaluations {
		if existing.CycleID == ev.CycleID && existing.ClassID == ev.ClassID && existing.ProfessorID == ev.ProfessorID {
			*ev = *existing
			return false, nil
		}
	}
	r.nextEvalID++
	ev.ID = r.nextEvalID
	cp := *ev
	r.evaluations[ev.ID] = &cp
	return true, nil
}

func (r *fakeEvalRepo) DeleteUnansweredEvaluations(ctx context.Context, cycleID, classID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	answered := make(map[int64]bool)
	for _, resp := range r.responses {
		answered[resp.EvaluationID] = true
	}
	var n int64
	for id, ev := range r.evaluations {
		if ev.CycleID == cycleID && ev.ClassID == classID && !answered[id] {
			delete(r.evaluations, id)
			n++
		}
	}
	return n, nil
}

func (r *fakeEvalRepo) GetEvaluationByID(ctx context.Context, id int64) (*evaluation.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.evaluations[id]
	if !ok {
		return nil, evaluation.ErrEvaluationNotFound
	}
	cp := *ev
	return &cp, nil
}

func (r *fakeEvalRepo) ListEvaluations(ctx context.Context, f evaluation.Filter) ([]*evaluation.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listEvalCalls++
	var out []*evaluation.Evaluation
	for _, ev := range r.evaluations {
		if f.ProfessorID != 0 && ev.ProfessorID != f.ProfessorID {
			continue
		}
		if f.CycleID != 0 && ev.CycleID != f.CycleID {
			continue
		}
		if f.ExcludeCycleID != 0 && ev.CycleID == f.ExcludeCycleID {
			continue
		}
		cp := *ev
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *fakeEvalRepo) CreateResponse(ctx context.Context, resp *evaluation.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextResponseID++
	resp.ID = r.nextResponseID
	cp := *resp
	r.responses = append(r.responses, &cp)
	return nil
}

func (r *fakeEvalRepo) GetResponseByID(ctx context.Context, id int64) (*evaluation.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, resp := range r.responses {
		if resp.ID == id {
			cp := *resp
			return &cp, nil
		}
	}
	return nil, evaluation.ErrResponseNotFound
}

func (r *fakeEvalRepo) DeleteResponse(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, resp := range r.responses {
		if resp.ID == id {
			r.responses = append(r.responses[:i], r.responses[i+1:]...)
			return nil
		}
	}
	return evaluation.ErrResponseNotFound
}

func (r *fakeEvalRepo) ListResponsesByEvaluations(ctx context.Context, evaluationIDs []int64) ([]*evaluation.Response, error) {
	r.mu.Lock()
	hook := r.onListResponses
	wanted := make(map[int64]bool, len(evaluationIDs))
	for _, id := range evaluationIDs {
		wanted[id] = true
	}
	var out []*evaluation.Response
	for _, resp := range r.responses {
		if wanted[resp.EvaluationID] {
			cp := *resp
			out = append(out, &cp)
		}
	}
	r.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (r *fakeEvalRepo) HasClosingReminder(ctx context.Context, cycleID int64, kind string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.closingReminders[fmt.Sprintf("%d/%s", cycleID, kind)]
	return ok, nil
}

func (r *fakeEvalRepo) RecordClosingReminder(ctx context.Context, cycleID int64, kind string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closingReminders[fmt.Sprintf("%d/%s", cycleID, kind)] = total
	return nil
}

// fakeSender records messages and fails or blocks for selected addresses.
type fakeSender struct {
	mu      sync.Mutex
	sent    []mail.Message
	failFor map[string]error
	block   map[string]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{failFor: make(map[string]error), block: make(map[string]bool)}
}

func (s *fakeSender) Send(ctx context.Context, msg mail.Message) (string, error) {
	s.mu.Lock()
	blocked := s.block[msg.ToEmail]
	failErr := s.failFor[msg.ToEmail]
	s.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if failErr != nil {
		return "", failErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return fmt.Sprintf("msg-%d", len(s.sent)), nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// mapCache is a cache.Cache without expiry.
type mapCache struct {
	mu   sync.Mutex
	data map[string]interface{}
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]interface{})}
}

func (c *mapCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *mapCache) Set(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
}

func (c *mapCache) Delete(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.data, k)
	}
}

func makeStudents(n int, firstID int64) []*evaluation.Student {
	out := make([]*evaluation.Student, 0, n)
	for i := 0; i < n; i++ {
		id := firstID + int64(i)
		out = append(out, &evaluation.Student{ID: id, Name: fmt.Sprintf("Aluno %d", id), Email: fmt.Sprintf("aluno%d@example.edu", id)})
	}
	return out
}
