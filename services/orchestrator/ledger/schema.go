// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

// tableDDL holds the idempotent DDL, in creation order.
var tableDDL = []struct {
	Name string
	DDL  string
}{
	{
		Name: "users",
		DDL: `CREATE TABLE IF NOT EXISTS users (
  id INT AUTO_INCREMENT PRIMARY KEY,
  name VARCHAR(100) NOT NULL,
  email VARCHAR(255) NOT NULL UNIQUE,
  password_hash VARCHAR(255) NULL,
  created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	{
		Name: "user_points",
		DDL: `CREATE TABLE IF NOT EXISTS user_points (
  user_id INT PRIMARY KEY,
  total_points INT NOT NULL DEFAULT 0,
  updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	{
		Name: "mood_entries",
		DDL: `CREATE TABLE IF NOT EXISTS mood_entries (
  id INT AUTO_INCREMENT PRIMARY KEY,
  user_id INT NOT NULL,
  entry_date DATE NOT NULL,
  mood VARCHAR(20) NOT NULL,
  mood_score TINYINT NOT NULL,
  created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
  UNIQUE KEY uniq_user_day (user_id, entry_date)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	{
		Name: "wellbeing_assessments",
		DDL: `CREATE TABLE IF NOT EXISTS wellbeing_assessments (
  id INT AUTO_INCREMENT PRIMARY KEY,
  user_id INT NOT NULL,
  q1_score TINYINT NOT NULL,
  q2_score TINYINT NOT NULL,
  q3_score TINYINT NOT NULL,
  q4_score TINYINT NOT NULL,
  total_score TINYINT NOT NULL,
  level VARCHAR(16) NOT NULL,
  share_with_hr TINYINT(1) NOT NULL DEFAULT 0,
  created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
  INDEX idx_user_created (user_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	{
		Name: "posts",
		DDL: `CREATE TABLE IF NOT EXISTS posts (
  id INT AUTO_INCREMENT PRIMARY KEY,
  author_id INT NOT NULL,
  content TEXT NOT NULL,
  image_url VARCHAR(512) NULL,
  created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
  updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
  INDEX idx_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
}

// TableNames lists the tables InitSchema manages.
func TableNames() []string {
	names := make([]string, len(tableDDL))
	for i, t := range tableDDL {
		names[i] = t.Name
	}
	return names
}
