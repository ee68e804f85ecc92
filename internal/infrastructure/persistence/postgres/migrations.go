package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE DIRECTORY
// Users and programs are owned by external collaborators; the core keeps a
// read-only copy for ownership checks and detail enrichment.
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(64) PRIMARY KEY,
    role VARCHAR(16) NOT NULL,
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_role CHECK (role IN ('ARTISAN', 'APPLICANT'))
);

CREATE TABLE IF NOT EXISTS programs (
    id VARCHAR(64) PRIMARY KEY,
    artisan_id VARCHAR(64) NOT NULL REFERENCES users(id),
    title VARCHAR(200) NOT NULL,
    is_open BOOLEAN NOT NULL DEFAULT TRUE,
    duration_weeks INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_duration CHECK (duration_weeks >= 0)
);

CREATE INDEX IF NOT EXISTS idx_programs_artisan_id ON programs(artisan_id);
`

const migration001Down = `
DROP TABLE IF EXISTS programs;
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE APPLICATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS applications (
    id UUID PRIMARY KEY,
    applicant_id VARCHAR(64) NOT NULL,
    program_id VARCHAR(64) NOT NULL REFERENCES programs(id),
    status VARCHAR(16) NOT NULL DEFAULT 'PENDING',
    message TEXT NOT NULL,
    motivation TEXT NOT NULL DEFAULT '',
    cv_url TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    decided_at TIMESTAMP WITH TIME ZONE,
    completed_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_application_status CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED', 'COMPLETED')),
    CONSTRAINT non_empty_message CHECK (length(btrim(message)) > 0),
    CONSTRAINT unique_applicant_program UNIQUE (applicant_id, program_id)
);

CREATE INDEX IF NOT EXISTS idx_applications_applicant ON applications(applicant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_applications_program ON applications(program_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);
`

const migration002Down = `
DROP TABLE IF EXISTS applications;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE PROGRESS REPORTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS progress_reports (
    id UUID PRIMARY KEY,
    application_id UUID NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
    week_number INTEGER NOT NULL,
    report_text TEXT NOT NULL,
    image_url TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT positive_week CHECK (week_number >= 1),
    CONSTRAINT non_empty_report_text CHECK (length(btrim(report_text)) > 0),
    CONSTRAINT non_empty_image_url CHECK (length(btrim(image_url)) > 0),
    CONSTRAINT unique_application_week UNIQUE (application_id, week_number)
);

CREATE INDEX IF NOT EXISTS idx_progress_reports_application ON progress_reports(application_id, week_number DESC);
`

const migration003Down = `
DROP TABLE IF EXISTS progress_reports;
`
