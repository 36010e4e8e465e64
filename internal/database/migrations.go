package database

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		email VARCHAR(255) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS teams (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		slug VARCHAR(255) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS team_members (
		team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role VARCHAR(20) NOT NULL DEFAULT 'REVIEWER'
			CHECK (role IN ('OWNER', 'MEMBER', 'REVIEWER')),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (team_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		slug VARCHAR(255) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		type VARCHAR(20) NOT NULL CHECK (type IN ('CONFERENCE', 'MEETUP')),
		team_id UUID NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
		cfp_start TIMESTAMP WITH TIME ZONE,
		cfp_end TIMESTAMP WITH TIME ZONE,
		max_proposals INTEGER CHECK (max_proposals IS NULL OR max_proposals > 0),
		formats_required BOOLEAN NOT NULL DEFAULT FALSE,
		categories_required BOOLEAN NOT NULL DEFAULT FALSE,
		email_organizer VARCHAR(255),
		email_notifications TEXT[] NOT NULL DEFAULT '{}',
		slack_webhook_url VARCHAR(500),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS event_formats (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS event_categories (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS talks (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		creator_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title VARCHAR(255) NOT NULL,
		abstract TEXT NOT NULL DEFAULT '',
		level VARCHAR(20),
		"references" TEXT,
		languages TEXT[] NOT NULL DEFAULT '{}',
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS talk_speakers (
		talk_id UUID NOT NULL REFERENCES talks(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (talk_id, user_id)
	)`,

	// talk_id is nulled rather than cascaded so decided proposals outlive their talk.
	`CREATE TABLE IF NOT EXISTS proposals (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		talk_id UUID REFERENCES talks(id) ON DELETE SET NULL,
		event_id UUID NOT NULL REFERENCES events(id) ON DELETE CASCADE,
		title VARCHAR(255) NOT NULL,
		abstract TEXT NOT NULL DEFAULT '',
		level VARCHAR(20),
		"references" TEXT,
		languages TEXT[] NOT NULL DEFAULT '{}',
		status VARCHAR(20) NOT NULL DEFAULT 'DRAFT'
			CHECK (status IN ('DRAFT', 'SUBMITTED', 'ACCEPTED', 'REJECTED', 'CONFIRMED', 'DECLINED')),
		comments TEXT,
		formats UUID[] NOT NULL DEFAULT '{}',
		categories UUID[] NOT NULL DEFAULT '{}',
		email_accepted_status VARCHAR(20),
		email_rejected_status VARCHAR(20),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE (talk_id, event_id)
	)`,

	`CREATE TABLE IF NOT EXISTS proposal_speakers (
		proposal_id UUID NOT NULL REFERENCES proposals(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (proposal_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS invites (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		talk_id UUID UNIQUE REFERENCES talks(id) ON DELETE CASCADE,
		proposal_id UUID UNIQUE REFERENCES proposals(id) ON DELETE CASCADE,
		team_id UUID UNIQUE REFERENCES teams(id) ON DELETE CASCADE,
		invited_by UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		CHECK (num_nonnulls(talk_id, proposal_id, team_id) = 1)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_events_team_id ON events(team_id)`,
	`CREATE INDEX IF NOT EXISTS idx_talk_speakers_user_id ON talk_speakers(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_proposals_event_status ON proposals(event_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_proposal_speakers_user_id ON proposal_speakers(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_team_members_user_id ON team_members(user_id)`,
}

func (db *DB) Migrate(ctx context.Context) error {
	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
