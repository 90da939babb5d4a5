// Package core provides the domain models and interfaces for the jobsync package.
package core

import (
	"time"
)

// User is the requesting client of a job.
type User struct {
	UserID        int    `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	AccountType   string `gorm:"size:32" json:"accountType"`
	Email         string `gorm:"size:255;index" json:"email"`
	FirstName     string `gorm:"size:255" json:"firstName"`
	LastName      string `gorm:"size:255" json:"lastName"`
	PhoneNumber   string `gorm:"size:32" json:"phoneNumber,omitempty"`
	StreetAddress string `gorm:"size:255" json:"streetAddress,omitempty"`
	City          string `gorm:"size:255" json:"city,omitempty"`
	State         string `gorm:"size:64" json:"state,omitempty"`
	Zip           string `gorm:"size:16" json:"zip,omitempty"`
}

// Washer is a worker that can be assigned to jobs.
type Washer struct {
	WasherID           int     `gorm:"primaryKey;autoIncrement:false" json:"washerId"`
	UserID             int     `gorm:"index" json:"userId"`
	WorkStatus         bool    `json:"workStatus"`
	AboutMe            string  `gorm:"type:text" json:"aboutMe,omitempty"`
	RateSmall          float64 `json:"rateSmall"`
	RateMedium         float64 `json:"rateMedium"`
	RateLarge          float64 `json:"rateLarge"`
	CurrentLocationLat float64 `json:"currentLocationLat"`
	CurrentLocationLon float64 `json:"currentLocationLon"`
}

// Car is the vehicle serviced by a job.
type Car struct {
	CarID        int    `gorm:"primaryKey;autoIncrement:false" json:"carId"`
	ClientID     int    `gorm:"index" json:"clientId"`
	Make         string `gorm:"size:64" json:"make"`
	Model        string `gorm:"size:64" json:"model"`
	Year         int    `json:"year"`
	Color        string `gorm:"size:32" json:"color"`
	LicensePlate string `gorm:"size:32" json:"licensePlate"`
	Category     string `gorm:"size:32" json:"category,omitempty"`
	Size         string `gorm:"size:16" json:"size,omitempty"`
	Photo        string `gorm:"size:1024" json:"photo,omitempty"`
}

// Job is the locally persisted record of a scheduled service job.
// Relations are set only when the referenced entity resolved locally;
// the matching id column is NULL otherwise.
type Job struct {
	JobID int `gorm:"primaryKey;autoIncrement:false"`

	Scheduled     bool
	TimeRequested *time.Time
	TimeArrived   *time.Time
	TimeCompleted *time.Time
	Completed     bool
	Paid          bool
	State         JobState `gorm:"index;size:32"`

	Address        string `gorm:"size:255"`
	Address2       string `gorm:"size:255"`
	City           string `gorm:"size:255"`
	Zip            string `gorm:"size:16"`
	JobType        string `gorm:"size:64"`
	Notes          string `gorm:"type:text"`
	JobLocationLat float64
	JobLocationLon float64
	PhotoBeforeJob string `gorm:"size:1024"`
	PhotoAfterJob  string `gorm:"size:1024"`

	ClientID *int    `gorm:"index"`
	Client   *User   `gorm:"foreignKey:ClientID;references:UserID"`
	WasherID *int    `gorm:"index"`
	Washer   *Washer `gorm:"foreignKey:WasherID;references:WasherID"`
	CarID    *int    `gorm:"index"`
	Car      *Car    `gorm:"foreignKey:CarID;references:CarID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Representation is the flat wire form of a Job. Relations travel as ids.
type Representation struct {
	JobID          int        `json:"jobId"`
	Scheduled      bool       `json:"scheduled"`
	TimeRequested  *time.Time `json:"timeRequested"`
	TimeArrived    *time.Time `json:"timeArrived"`
	TimeCompleted  *time.Time `json:"timeCompleted"`
	Completed      bool       `json:"completed"`
	Paid           bool       `json:"paid"`
	State          JobState   `json:"state"`
	Address        string     `json:"address"`
	Address2       string     `json:"address2"`
	City           string     `json:"city"`
	Zip            string     `json:"zip"`
	JobType        string     `json:"jobType"`
	Notes          string     `json:"notes"`
	JobLocationLat float64    `json:"jobLocationLat"`
	JobLocationLon float64    `json:"jobLocationLon"`
	PhotoBeforeJob string     `json:"photoBeforeJob"`
	PhotoAfterJob  string     `json:"photoAfterJob"`
	ClientID       int        `json:"clientId"`
	WasherID       *int       `json:"washerId"`
	CarID          int        `json:"carId"`
}

// NewJob builds a non-persisted Job from a representation.
// Relations are left unset; resolving them needs the lookup collaborators.
func NewJob(rep Representation) *Job {
	job := &Job{}
	job.ApplyScalars(rep)
	return job
}

// ApplyScalars overwrites every scalar field with the representation's value.
func (j *Job) ApplyScalars(rep Representation) {
	j.JobID = rep.JobID
	j.Scheduled = rep.Scheduled
	j.TimeRequested = copyTime(rep.TimeRequested)
	j.TimeArrived = copyTime(rep.TimeArrived)
	j.TimeCompleted = copyTime(rep.TimeCompleted)
	j.Completed = rep.Completed
	j.Paid = rep.Paid
	j.State = rep.State
	j.Address = rep.Address
	j.Address2 = rep.Address2
	j.City = rep.City
	j.Zip = rep.Zip
	j.JobType = rep.JobType
	j.Notes = rep.Notes
	j.JobLocationLat = rep.JobLocationLat
	j.JobLocationLon = rep.JobLocationLon
	j.PhotoBeforeJob = rep.PhotoBeforeJob
	j.PhotoAfterJob = rep.PhotoAfterJob
}

// SetClient sets or clears the client relation and its id column together.
func (j *Job) SetClient(u *User) {
	j.Client = u
	if u == nil {
		j.ClientID = nil
		return
	}
	id := u.UserID
	j.ClientID = &id
}

// SetWasher sets or clears the washer relation and its id column together.
func (j *Job) SetWasher(w *Washer) {
	j.Washer = w
	if w == nil {
		j.WasherID = nil
		return
	}
	id := w.WasherID
	j.WasherID = &id
}

// SetCar sets or clears the car relation and its id column together.
func (j *Job) SetCar(c *Car) {
	j.Car = c
	if c == nil {
		j.CarID = nil
		return
	}
	id := c.CarID
	j.CarID = &id
}

// Representation converts the record back to its wire form.
// Unresolved relations are reported as zero (client, car) or null (washer).
func (j *Job) Representation() Representation {
	rep := Representation{
		JobID:          j.JobID,
		Scheduled:      j.Scheduled,
		TimeRequested:  copyTime(j.TimeRequested),
		TimeArrived:    copyTime(j.TimeArrived),
		TimeCompleted:  copyTime(j.TimeCompleted),
		Completed:      j.Completed,
		Paid:           j.Paid,
		State:          j.State,
		Address:        j.Address,
		Address2:       j.Address2,
		City:           j.City,
		Zip:            j.Zip,
		JobType:        j.JobType,
		Notes:          j.Notes,
		JobLocationLat: j.JobLocationLat,
		JobLocationLon: j.JobLocationLon,
		PhotoBeforeJob: j.PhotoBeforeJob,
		PhotoAfterJob:  j.PhotoAfterJob,
	}
	if j.ClientID != nil {
		rep.ClientID = *j.ClientID
	}
	if j.WasherID != nil {
		id := *j.WasherID
		rep.WasherID = &id
	}
	if j.CarID != nil {
		rep.CarID = *j.CarID
	}
	return rep
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
