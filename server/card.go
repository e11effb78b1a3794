// Copyright (c) Microsoft. All rights reserved.

package server

import (
	"net/http"
	"strings"

	"github.com/local-agents/ollama-agent/agent"
)

// AgentCard describes the agent to discovery clients at
// /.well-known/agent.json.
type AgentCard struct {
	Name        string
	Description string
	Skills      []Skill
}

// Skill is one capability listed on the card.
type Skill struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CardFromTools lists every tool as a skill.
func CardFromTools(name, description string, tools []agent.Tool) *AgentCard {
	card := &AgentCard{Name: name, Description: description}
	for _, t := range tools {
		card.Skills = append(card.Skills, Skill{ID: t.Name(), Name: t.Name(), Description: t.Description()})
	}
	return card
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	card := s.cfg.Card
	if card == nil {
		writeError(w, http.StatusNotFound, "agent card not configured")
		return
	}
	skills := card.Skills
	if skills == nil {
		skills = []Skill{}
	}
	schemes := []map[string]string{}
	if s.cfg.APIKey != "" {
		schemes = append(schemes, map[string]string{"scheme": "bearer"})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":               card.Name,
		"description":        card.Description,
		"url":                baseURL(r) + "/",
		"version":            Version,
		"capabilities":       map[string]bool{"streaming": false},
		"defaultInputModes":  []string{"text"},
		"defaultOutputModes": []string{"text"},
		"skills":             skills,
		"authentication":     map[string]any{"schemes": schemes},
	})
}

// baseURL honors reverse proxy headers.
func baseURL(r *http.Request) string {
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	return strings.TrimRight(scheme+"://"+host, "/")
}
