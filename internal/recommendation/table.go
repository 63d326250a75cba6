// Package recommendation maps a diagnosis to treatment advice.
package recommendation

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Set is the advice shown alongside a diagnosis.
type Set struct {
	Medication []string `json:"medication" yaml:"medication"`
	General    []string `json:"general" yaml:"general"`
	FollowUp   []string `json:"follow_up" yaml:"follow_up"`
}

// Lookup resolves a diagnosis to a recommendation set. Implementations never fail;
// unknown diagnoses get a default set.
type Lookup interface {
	For(diagnosis string) Set
}

// Entry binds a key to the set used when the key occurs in a diagnosis.
type Entry struct {
	Key string `yaml:"key"`
	Set `yaml:",inline"`
}

// Table matches keys as case-insensitive substrings of the diagnosis text.
// Entries are tried in order and the first match wins.
type Table struct {
	entries  []Entry
	fallback Set
}

func NewTable(entries []Entry, fallback Set) *Table {
	return &Table{entries: entries, fallback: fallback}
}

func (t *Table) For(diagnosis string) Set {
	d := strings.ToLower(diagnosis)
	if d != "" {
		for _, e := range t.entries {
			if e.Key != "" && strings.Contains(d, strings.ToLower(e.Key)) {
				return e.Set
			}
		}
	}
	return t.fallback
}

type fileTable struct {
	Entries []Entry `yaml:"entries"`
	Default Set     `yaml:"default"`
}

// LoadFile reads a YAML table:
//
//	entries:
//	  - key: Катаракта
//	    medication: [...]
//	default:
//	  general: [...]
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recommendations %s: %w", path, err)
	}
	var ft fileTable
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return nil, fmt.Errorf("parse recommendations %s: %w", path, err)
	}
	for i, e := range ft.Entries {
		if strings.TrimSpace(e.Key) == "" {
			return nil, fmt.Errorf("recommendations entry %d has no key", i)
		}
	}
	return NewTable(ft.Entries, ft.Default), nil
}

// Default is the built-in ophthalmology table.
func Default() *Table {
	return NewTable([]Entry{
		{
			Key: "Ирит",
			Set: Set{
				Medication: []string{
					"Циклоплегические средства: Атропин 1% - по 1 капле 2-3 раза в день",
					"Противовоспалительные: Дексаметазон 0.1% - по 1 капле 4-6 раз в день",
				},
				General: []string{
					"Постельный режим",
					"Защита глаза от света",
					"Немедленное обращение при ухудшении",
				},
				FollowUp: []string{
					"Контрольный осмотр через 2-3 дня",
					"Консультация ревматолога при рецидивирующем течении",
				},
			},
		},
		{
			Key: "Бактериальный конъюнктивит",
			Set: Set{
				Medication: []string{
					"Антибактериальные капли: Ципрофлоксацин 0.3% - по 1-2 капли 4-6 раз в день",
					"Антибактериальная мазь на ночь: Тетрациклин 1%",
				},
				General: []string{
					"Частое мытье рук",
					"Использование отдельного полотенца",
					"Исключение контактных линз на период лечения",
				},
				FollowUp: []string{
					"Повторный осмотр через 3-5 дней",
					"Обратиться при отсутствии улучшения через 48 часов",
				},
			},
		},
		{
			Key: "Катаракта",
			Set: Set{
				Medication: []string{
					"Витаминные капли: Тауфон 4% - по 1-2 капли 2-3 раза в день",
					"При прогрессировании - хирургическое лечение",
				},
				General: []string{
					"Защита от ультрафиолета (солнцезащитные очки)",
					"Контроль сопутствующих заболеваний (диабет, гипертония)",
				},
				FollowUp: []string{
					"Наблюдение у офтальмолога каждые 6-12 месяцев",
					"Консультация хирурга при значительном снижении зрения",
				},
			},
		},
	}, Set{
		Medication: []string{
			"Симптоматическое лечение по показаниям",
			"Увлажняющие капли при необходимости",
		},
		General: []string{
			"Наблюдение за динамикой симптомов",
			"Обратиться к офтальмологу для уточнения диагноза",
		},
		FollowUp: []string{
			"Повторная консультация при сохранении симптомов",
			"Немедленно обратиться при ухудшении состояния",
		},
	})
}
