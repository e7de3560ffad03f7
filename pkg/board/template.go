package board

import "fmt"

// Default returns the built-in board used to seed new sessions when no
// template document is configured.
func Default() *State {
	teams := []Team{
		{ID: "dev", Name: "IT Devs"},
		{ID: "design", Name: "R&G"},
		{ID: "qa", Name: "People Ops"},
		{ID: "devops", Name: "Payments"},
		{ID: "product", Name: "Mortgage"},
		{ID: "marketing", Name: "Other"},
	}
	for i := range teams {
		teams[i].ColorClass = TeamColorPrefix + teams[i].ID
	}

	sprints := make([]Sprint, 0, 8)
	for i := 1; i <= 8; i++ {
		sprints = append(sprints, Sprint{ID: i, Name: fmt.Sprintf("Sprint %d", i)})
	}

	features := []Feature{
		{ID: 1, Title: "User Authentication System", TeamID: "dev", SprintID: 1, Assignee: "Sarah",
			Description: "Implement secure login/logout functionality with session management, password hashing, and multi-factor authentication support."},
		{ID: 2, Title: "Database Performance Optimization", TeamID: "dev", SprintID: 1, Assignee: "John",
			Description: "Optimize database queries, add proper indexing, implement connection pooling, and reduce response times for high-traffic scenarios."},
		{ID: 3, Title: "Mobile App UI Redesign", TeamID: "design", SprintID: 2, Assignee: "Mike",
			Description: "Create modern, responsive mobile interface with improved navigation, accessibility features, and consistent design patterns."},
		{ID: 4, Title: "Payment Gateway Integration", TeamID: "dev", SprintID: 3, Assignee: "Lisa",
			Description: "Integrate multiple payment providers with secure transaction processing, refund handling, and fraud detection."},
		{ID: 5, Title: "Automated Testing Suite", TeamID: "qa", SprintID: 3, Assignee: "Tom",
			Description: "Build comprehensive test automation framework covering unit tests, integration tests, and end-to-end testing scenarios."},
		{ID: 6, Title: "CI/CD Pipeline Setup", TeamID: "devops", SprintID: 2, Assignee: "Alex",
			Description: "Configure automated build, test, and deployment pipeline with staging environments and rollback capabilities."},
		{ID: 7, Title: "Employee Onboarding Portal", TeamID: "product", SprintID: 1, Assignee: "Emma",
			Description: "Develop self-service portal for new employee registration, document uploads, and workflow automation for HR processes."},
		{ID: 8, Title: "Customer Support Chat", TeamID: "product", SprintID: 4, Assignee: "David",
			Description: "Implement real-time chat system with agent routing, chat history, file sharing, and integration with support ticketing system."},
		{ID: 9, Title: "Load Testing & Performance", TeamID: "qa", SprintID: 4, Assignee: "Amy",
			Description: "Conduct comprehensive load testing to validate system performance under expected traffic volumes and identify bottlenecks."},
		{ID: 10, Title: "Security Vulnerability Assessment", TeamID: "devops", SprintID: 5, Assignee: "Ryan",
			Description: "Perform security audit including penetration testing, code review, and compliance validation for data protection standards."},
		{ID: 11, Title: "User Feedback Dashboard", TeamID: "product", SprintID: 3, Assignee: "Emma",
			Description: "Create analytics dashboard to collect, categorize, and visualize user feedback with sentiment analysis and reporting features."},
		{ID: 12, Title: "Data Analytics Platform", TeamID: "dev", SprintID: 6, Assignee: "John",
			Description: "Build real-time data processing and visualization platform with custom dashboards, data export, and business intelligence tools."},
	}

	dependencies := []Dependency{
		{FromFeatureID: 1, ToFeatureID: 4, Relationship: "prerequisite for", Note: "Users must be authenticated before they can make payments"},
		{FromFeatureID: 2, ToFeatureID: 12, Relationship: "enables", Note: "Optimized database is required for real-time analytics performance"},
		{FromFeatureID: 6, ToFeatureID: 5, Relationship: "enables", Note: "CI/CD pipeline must be in place before automated testing can be effectively implemented"},
		{FromFeatureID: 4, ToFeatureID: 9, Relationship: "requires", Note: "Payment system needs load testing to ensure it can handle transaction volumes"},
		{FromFeatureID: 10, ToFeatureID: 4, Relationship: "blocks", Note: "Security assessment must complete before payment gateway goes live"},
	}

	return &State{
		SchemaVersion: SchemaVersion,
		Teams:         teams,
		Sprints:       sprints,
		Features:      features,
		Dependencies:  dependencies,
		NextFeatureID: 13,
	}
}

// Check verifies the structural invariants of a board: unique team, sprint and
// feature ids, a feature counter above every issued id, and unique unordered
// dependency pairs.
func (s *State) Check() error {
	teams := make(map[string]struct{}, len(s.Teams))
	for _, t := range s.Teams {
		if _, dup := teams[t.ID]; dup {
			return fmt.Errorf("duplicate team id %q", t.ID)
		}
		teams[t.ID] = struct{}{}
	}

	sprints := make(map[int]struct{}, len(s.Sprints))
	for _, sp := range s.Sprints {
		if _, dup := sprints[sp.ID]; dup {
			return fmt.Errorf("duplicate sprint id %d", sp.ID)
		}
		sprints[sp.ID] = struct{}{}
	}

	features := make(map[int]struct{}, len(s.Features))
	for _, f := range s.Features {
		if _, dup := features[f.ID]; dup {
			return fmt.Errorf("duplicate feature id %d", f.ID)
		}
		features[f.ID] = struct{}{}
		if f.ID >= s.NextFeatureID {
			return fmt.Errorf("nextFeatureId %d is not above feature id %d", s.NextFeatureID, f.ID)
		}
	}

	pairs := make(map[pairKey]struct{}, len(s.Dependencies))
	for _, d := range s.Dependencies {
		key := keyOf(d)
		if _, dup := pairs[key]; dup {
			return fmt.Errorf("features %d and %d are linked more than once", d.FromFeatureID, d.ToFeatureID)
		}
		pairs[key] = struct{}{}
	}
	return nil
}
