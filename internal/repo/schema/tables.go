package schema

// Default builds the canonical schema (spec.md §6's full table list,
// expanded per SPEC_FULL.md §9 with delegation/session-audit tables the
// original Rust implementation also carries).
func Default() Schema {
	return Schema{Tables: []Table{
		organisationsTable(),
		usersTable(),
		teamsTable(),
		teamMembersTable(),
		apiKeysTable(),
		projectsTable(),
		collectionsTable(),
		observationsTable(),
		sessionSummariesTable(),
		agentSessionsTable(),
		sessionTransitionsTable(),
		toolCallsTable(),
		delegationsTable(),
		checkpointsTable(),
		errorPatternsTable(),
		errorPatternMatchesTable(),
		projectIssuesTable(),
		issueCommentsTable(),
		issueLabelsTable(),
		issueLabelAssignmentsTable(),
		plansTable(),
		planVersionsTable(),
		planReviewsTable(),
		repositoriesTable(),
		branchesTable(),
		worktreesTable(),
		worktreeAssignmentsTable(),
	}}
}

func pkCol(name string) Column { return Column{Name: name, Type: UUID, PrimaryKey: true} }

func organisationsTable() Table {
	return Table{
		Name: "organisations",
		Columns: []Column{
			pkCol("id"),
			{Name: "name", Type: Text, NotNull: true, Unique: true},
			{Name: "created_at", Type: Timestamp, NotNull: true},
		},
	}
}

func usersTable() Table {
	return Table{
		Name: "users",
		Columns: []Column{
			pkCol("id"),
			{Name: "organisation_id", Type: UUID, NotNull: true},
			{Name: "email", Type: Text, NotNull: true, Unique: true},
			{Name: "display_name", Type: Text},
			{Name: "created_at", Type: Timestamp, NotNull: true},
		},
		ForeignKeys: []ForeignKey{{Column: "organisation_id", RefTable: "organisations", RefColumn: "id", OnDelete: "CASCADE"}},
		Indexes:     []Index{{Name: "idx_users_organisation", Columns: []string{"organisation_id"}}},
	}
}

func teamsTable() Table {
	return Table{
		Name: "teams",
		Columns: []Column{
			pkCol("id"),
			{Name: "organisation_id", Type: UUID, NotNull: true},
			{Name: "name", Type: Text, NotNull: true},
			{Name: "created_at", Type: Timestamp, NotNull: true},
		},
		ForeignKeys: []ForeignKey{{Column: "organisation_id", RefTable: "organisations", RefColumn: "id", OnDelete: "CASCADE"}},
	}
}

func teamMembersTable() Table {
	return Table{
		Name: "team_members",
		Columns: []Column{
			{Name: "team_id", Type: UUID, NotNull: true},
			{Name: "user_id", Type: UUID, NotNull: true},
			{Name: "role", Type: Text, NotNull: true},
		},
		ForeignKeys: []ForeignKey{
			{Column: "team_id", RefTable: "teams", RefColumn: "id", OnDelete: "CASCADE"},
			{Column: "user_id", RefTable: "users", RefColumn: "id", OnDelete: "CASCADE"},
		},
		Indexes: []Index{{Name: "idx_team_members_unique", Columns: []string{"team_id", "user_id"}, Unique: true}},
	}
}

func apiKeysTable() Table {
	return Table{
		Name: "api_keys",
		Columns: []Column{
			pkCol("id"),
			{Name: "user_id", Type: UUID, NotNull: true},
			{Name: "key_hash", Type: Text, NotNull: true, Unique: true},
			{Name: "created_at", Type: Timestamp, NotNull: true},
			{Name: "revoked_at", Type: Timestamp},
		},
		ForeignKeys: []ForeignKey{{Column: "user_id", RefTable: "users", RefColumn: "id", OnDelete: "CASCADE"}},
	}
}

func projectsTable() Table {
	return Table{
		Name: "projects",
		Columns: []Column{
			pkCol("id"),
			{Name: "organisation_id", Type: UUID, NotNull: true},
			{Name: "name", Type: Text, NotNull: true},
			{Name: "root_path", Type: Text},
			{Name: "created_at", Type: Timestamp, NotNull: true},
		},
		ForeignKeys: []ForeignKey{{Column: "organisation_id", RefTable: "organisations", RefColumn: "id", OnDelete: "CASCADE"}},
	}
}

func collectionsTable() Table {
	return Table{
		Name: "collections",
		Columns: []Column{
			pkCol("id"),
			{Name: "project_id", Type: UUID, NotNull: true},
			{Name: "user_name", Type: Text, NotNull: true},
			{Name: "backend_id", Type: Text, NotNull: true, Unique: true},
			{Name: "dimensions", Type: Integer, NotNull: true},
			{Name: "created_at", Type: Timestamp, NotNull: true},
		},
		ForeignKeys: []ForeignKey{{Column: "project_id", RefTable: "projects", RefColumn: "id", OnDelete: "CASCADE"}},
		Indexes:     []Index{{Name: "idx_collections_project_name", Columns: []string{"project_id", "user_name"}, Unique: true}},
	}
}

// observationsTable is the core memory-store table (spec.md §3/§4.5).
func observationsTable() Table {
	return Table{
		Name: "observations",
		Columns: []Column{
			pkCol("id"),
			{Name: "project_id", Type: UUID, NotNull: true},
			{Name: "content", Type: Text, NotNull: true},
			{Name: "content_hash", Type: Text, NotNull: true},
			{Name: "observation_type", Type: Text, NotNull: true},
			{Name: "tags", Type: JSON, NotNull: true, Default: "'[]'"},
			{Name: "session_id", Type: Text},
			{Name: "repo_id", Type: Text},
			{Name: "file_path", Type: Text},
			{Name: "branch", Type: Text},
			{Name: "commit_sha", Type: Text},
			{Name: "execution_metadata", Type: JSON},
			{Name: "quality_gate_metadata", Type: JSON},
			{Name: "origin_context", Type: JSON},
			{Name: "embedding_id", Type: Text},
			{Name: "created_at", Type: Integer, NotNull: true},
		},
		ForeignKeys: []ForeignKey{{Column: "project_id", RefTable: "projects", RefColumn: "id", OnDelete: "CASCADE"}},
		Indexes: []Index{
			{Name: "idx_observations_project_hash", Columns: []string{"project_id", "content_hash"}, Unique: true},
			{Name: "idx_observations_type", Columns: []string{"observation_type"}},
			{Name: "idx_observations_session", Columns: []string{"session_id"}},
			{Name: "idx_observations_created", Columns: []string{"created_at"}},
		},
		FTS: &FTSMirror{
			Name:          "observations_fts",
			ContentTable:  "observations",
			ContentColumn: []string{"content"},
			IDColumn:      "id",
		},
	}
}

func sessionSummariesTable() Table {
	return Table{
		Name: "session_summaries",
		Columns: []Column{
			pkCol("id"),
			{Name: "session_id", Type: Text, NotNull: true},
			{Name: "summary", Type: Text, NotNull: true},
			{Name: "created_at", Type: Integer, NotNull: true},
		},
		Indexes: []Index{{Name: "idx_session_summaries_session", Columns: []string{"session_id"}}},
	}
}

// agentSessionsTable backs the session FSM (spec.md §4.6).
func agentSessionsTable() Table {
	return Table{
		Name: "agent_sessions",
		Columns: []Column{
			pkCol("id"),
			{Name: "project_id", Type: UUID, NotNull: true},
			{Name: "state_kind", Type: Text, NotNull: true},
			{Name: "state_data", Type: JSON, NotNull: true, Default: "'{}'"},
			{Name: "version", Type: Integer, NotNull: true, Default: "1"},
			{Name: "parent_session_id", Type: Text},
			{Name: "created_at", Type: Timestamp, NotNull: true},
			{Name: "updated_at", Type: Timestamp, NotNull: true},
		},
		ForeignKeys: []ForeignKey{{Column: "project_id", RefTable: "projects", RefColumn: "id", OnDelete: "CASCADE"}},
	}
}

// sessionTransitionsTable is the FSM's audit log (spec.md §3 "Transition").
func sessionTransitionsTable() Table {
	return Table{
		Name: "session_transitions",
		Columns: []Column{
			pkCol("id"),
			{Name: "session_id", Type: UUID, NotNull: true},
			{Name: "from_state", Type: Text, NotNull: true},
			{Name: "to_state", Type: Text, NotNull: true},
			{Name: "trigger", Type: Text, NotNull: true},
			{Name: "guard_diagnostic", Type: Text},
			{Name: "occurred_at", Type: Timestamp, NotNull: true},
		},
		ForeignKeys: []ForeignKey{{Column: "session_id", RefTable: "agent_sessions", RefColumn: "id", OnDelete: "CASCADE"}},
		Indexes:     []Index{{Name: "idx_session_transitions_session", Columns: []string{"session_id"}}},
	}
}

func toolCallsTable() Table {
	return Table{
		Name: "tool_calls",
		Columns: []Column{
			pkCol("id"),
			{Name: "session_id", Type: Text, NotNull: true},
			{Name: "tool_name", Type: Text, NotNull: true},
			{Name: "arguments", Type: JSON},
			{Name: "success", Type: Boolean, NotNull: true},
			{Name: "created_at", Type: Timestamp, NotNull: true},
		},
		Indexes: []Index{{Name: "idx_tool_calls_session", Columns: []string{"session_id"}}},
	}
}

func delegationsTable() Table {
	return Table{
		Name: "delegations",
		Columns: []Column{
			pkCol("id"),
			{Name: "parent_session_id", Type: Text, NotNull: true},
			{Name: "child_session_id", Type: Text, NotNull: true},
			{Name: "created_at", Type: Timestamp, NotNull: true},
		},
	}
}

func checkpointsTable() Table {
	return Table{
		Name: "checkpoints",
		Columns: []Column{
			pkCol("id"),
			{Name: "session_id", Type: Text, NotNull: true},
			{Name: "label", Type: Text},
			{Name: "state_snapshot", Type: JSON},
			{Name: "created_at", Type: Timestamp, NotNull: true},
		},
	}
}

func errorPatternsTable() Table {
	return Table{
		Name: "error_patterns",
		Columns: []Column{
			pkCol("id"),
			{Name: "name", Type: Text, NotNull: true, Unique: true},
			{Name: "regex", Type: Text, NotNull: true},
			{Name: "category", Type: Text},
		},
	}
}

func errorPatternMatchesTable() Table {
	return Table{
		Name: "error_pattern_matches",
		Columns: []Column{
			pkCol("id"),
			{Name: "pattern_id", Type: UUID, NotNull: true},
			{Name: "observation_id", Type: UUID, NotNull: true},
			{Name: "matched_at", Type: Timestamp, NotNull: true},
		},
		ForeignKeys: []ForeignKey{
			{Column: "pattern_id", RefTable: "error_patterns", RefColumn: "id", OnDelete: "CASCADE"},
			{Column: "observation_id", RefTable: "observations", RefColumn: "id", OnDelete: "CASCADE"},
		},
	}
}

func projectIssuesTable() Table {
	return Table{
		Name: "project_issues",
		Columns: []Column{
			pkCol("id"),
			{Name: "project_id", Type: UUID, NotNull: true},
			{Name: "title", Type: Text, NotNull: true},
			{Name: "body", Type: Text},
			{Name: "status", Type: Text, NotNull: true, Default: "'open'"},
			{Name: "created_at", Type: Timestamp, NotNull: true},
		},
		ForeignKeys: []ForeignKey{{Column: "project_id", RefTable: "projects", RefColumn: "id", OnDelete: "CASCADE"}},
	}
}

func issueCommentsTable() Table {
	return Table{
		Name: "issue_comments",
		Columns: []Column{
			pkCol("id"),
			{Name: "issue_id", Type: UUID, NotNull: true},
			{Name: "body", Type: Text, NotNull: true},
			{Name: "created_at", Type: Timestamp, NotNull: true},
		},
		ForeignKeys: []ForeignKey{{Column: "issue_id", RefTable: "project_issues", RefColumn: "id", OnDelete: "CASCADE"}},
	}
}

func issueLabelsTable() Table {
	return Table{
		Name: "issue_labels",
		Columns: []Column{
			pkCol("id"),
			{Name: "project_id", Type: UUID, NotNull: true},
			{Name: "name", Type: Text, NotNull: true},
			{Name: "color", Type: Text},
		},
		ForeignKeys: []ForeignKey{{Column: "project_id", RefTable: "projects", RefColumn: "id", OnDelete: "CASCADE"}},
	}
}

func issueLabelAssignmentsTable() Table {
	return Table{
		Name: "issue_label_assignments",
		Columns: []Column{
			{Name: "issue_id", Type: UUID, NotNull: true},
			{Name: "label_id", Type: UUID, NotNull: true},
		},
		ForeignKeys: []ForeignKey{
			{Column: "issue_id", RefTable: "project_issues", RefColumn: "id", OnDelete: "CASCADE"},
			{Column: "label_id", RefTable: "issue_labels", RefColumn: "id", OnDelete: "CASCADE"},
		},
		Indexes: []Index{{Name: "idx_issue_label_assignments_unique", Columns: []string{"issue_id", "label_id"}, Unique: true}},
	}
}

func plansTable() Table {
	return Table{
		Name: "plans",
		Columns: []Column{
			pkCol("id"),
			{Name: "project_id", Type: UUID, NotNull: true},
			{Name: "title", Type: Text, NotNull: true},
			{Name: "created_at", Type: Timestamp, NotNull: true},
		},
		ForeignKeys: []ForeignKey{{Column: "project_id", RefTable: "projects", RefColumn: "id", OnDelete: "CASCADE"}},
	}
}

func planVersionsTable() Table {
	return Table{
		Name: "plan_versions",
		Columns: []Column{
			pkCol("id"),
			{Name: "plan_id", Type: UUID, NotNull: true},
			{Name: "version", Type: Integer, NotNull: true},
			{Name: "content", Type: Text, NotNull: true},
			{Name: "created_at", Type: Timestamp, NotNull: true},
		},
		ForeignKeys: []ForeignKey{{Column: "plan_id", RefTable: "plans", RefColumn: "id", OnDelete: "CASCADE"}},
		Indexes:     []Index{{Name: "idx_plan_versions_unique", Columns: []string{"plan_id", "version"}, Unique: true}},
	}
}

func planReviewsTable() Table {
	return Table{
		Name: "plan_reviews",
		Columns: []Column{
			pkCol("id"),
			{Name: "plan_version_id", Type: UUID, NotNull: true},
			{Name: "reviewer_id", Type: UUID},
			{Name: "verdict", Type: Text, NotNull: true},
			{Name: "notes", Type: Text},
			{Name: "created_at", Type: Timestamp, NotNull: true},
		},
		ForeignKeys: []ForeignKey{{Column: "plan_version_id", RefTable: "plan_versions", RefColumn: "id", OnDelete: "CASCADE"}},
	}
}

func repositoriesTable() Table {
	return Table{
		Name: "repositories",
		Columns: []Column{
			pkCol("id"),
			{Name: "project_id", Type: UUID, NotNull: true},
			{Name: "remote_url", Type: Text},
			{Name: "default_branch", Type: Text},
		},
		ForeignKeys: []ForeignKey{{Column: "project_id", RefTable: "projects", RefColumn: "id", OnDelete: "CASCADE"}},
	}
}

func branchesTable() Table {
	return Table{
		Name: "branches",
		Columns: []Column{
			pkCol("id"),
			{Name: "repository_id", Type: UUID, NotNull: true},
			{Name: "name", Type: Text, NotNull: true},
			{Name: "head_commit", Type: Text},
		},
		ForeignKeys: []ForeignKey{{Column: "repository_id", RefTable: "repositories", RefColumn: "id", OnDelete: "CASCADE"}},
		Indexes:     []Index{{Name: "idx_branches_unique", Columns: []string{"repository_id", "name"}, Unique: true}},
	}
}

func worktreesTable() Table {
	return Table{
		Name: "worktrees",
		Columns: []Column{
			pkCol("id"),
			{Name: "repository_id", Type: UUID, NotNull: true},
			{Name: "path", Type: Text, NotNull: true},
			{Name: "branch_id", Type: UUID},
		},
		ForeignKeys: []ForeignKey{{Column: "repository_id", RefTable: "repositories", RefColumn: "id", OnDelete: "CASCADE"}},
	}
}

func worktreeAssignmentsTable() Table {
	return Table{
		Name: "worktree_assignments",
		Columns: []Column{
			{Name: "worktree_id", Type: UUID, NotNull: true},
			{Name: "session_id", Type: Text, NotNull: true},
			{Name: "assigned_at", Type: Timestamp, NotNull: true},
		},
		ForeignKeys: []ForeignKey{{Column: "worktree_id", RefTable: "worktrees", RefColumn: "id", OnDelete: "CASCADE"}},
	}
}
